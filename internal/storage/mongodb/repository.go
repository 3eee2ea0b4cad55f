// Package mongodb is the MongoDB backend. Live updates come from change
// streams, one per subscription.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wydatki/internal/core"
)

const (
	expensesCollection = "wydatki"
	usersCollection    = "users"
)

type expenseDoc struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	UID   string             `bson:"uid"`
	Nazwa string             `bson:"nazwa"`
	Cena  string             `bson:"cena"`
	Icon  string             `bson:"icon"`
	Data  string             `bson:"data"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Budget       string    `bson:"budget"`
	WeeklyLimit  string    `bson:"weeklyLimit"`
	MonthlyLimit string    `bson:"monthlyLimit"`
	YearlyLimit  string    `bson:"yearlyLimit"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type Repository struct {
	provider CollectionProvider
	now      func() time.Time
}

func NewRepository(provider CollectionProvider) *Repository {
	return &Repository{provider: provider, now: time.Now}
}

func (r *Repository) expenses() DataStore {
	return r.provider.Collection(expensesCollection)
}

func (r *Repository) users() DataStore {
	return r.provider.Collection(usersCollection)
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]core.ExpenseRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "data", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.expenses().Find(ctx, bson.M{"uid": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find wydatki: %w: %w", core.ErrRemoteUnavailable, err)
	}
	defer cur.Close(ctx)

	var docs []expenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode wydatki: %w: %w", core.ErrRemoteUnavailable, err)
	}

	out := make([]core.ExpenseRecord, 0, len(docs))
	var unreadable []error
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			slog.WarnContext(ctx, "Unreadable expense document",
				"component", "storage",
				"id", d.ID.Hex(),
				"error", err)
			unreadable = append(unreadable, fmt.Errorf("id %s: %w", d.ID.Hex(), err))
			continue
		}
		out = append(out, rec)
	}
	if len(unreadable) > 0 {
		return out, fmt.Errorf("list wydatki: %d unreadable: %w", len(unreadable), errors.Join(unreadable...))
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (core.ExpenseRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.ExpenseRecord{}, core.ErrRecordNotFound
	}
	var d expenseDoc
	err = r.expenses().FindOne(ctx, bson.M{"_id": oid, "uid": ownerID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.ExpenseRecord{}, core.ErrRecordNotFound
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("find wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return d.record()
}

func (r *Repository) Create(ctx context.Context, e core.NewExpense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	d := expenseDoc{
		ID:    primitive.NewObjectID(),
		UID:   e.OwnerID,
		Nazwa: e.CategoryName,
		Cena:  e.Amount.String(),
		Icon:  e.CategoryIcon,
		Data:  core.FormatTimestamp(e.OccurredAt),
	}
	if _, err := r.expenses().InsertOne(ctx, d); err != nil {
		return "", fmt.Errorf("insert wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return d.ID.Hex(), nil
}

func (r *Repository) Update(ctx context.Context, ownerID, id string, e core.ExpenseEdit) error {
	if err := e.Validate(); err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.ErrRecordNotFound
	}
	res, err := r.expenses().UpdateOne(ctx,
		bson.M{"_id": oid, "uid": ownerID},
		bson.M{"$set": bson.M{"nazwa": e.CategoryName, "cena": e.Amount.String(), "icon": e.CategoryIcon}})
	if err != nil {
		return fmt.Errorf("update wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if _, err := r.expenses().DeleteOne(ctx, bson.M{"_id": oid, "uid": ownerID}); err != nil {
		return fmt.Errorf("delete wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

// watchPipeline matches the owner's inserts, updates and replacements. A
// delete event carries only the document key, so every delete matches.
func watchPipeline(ownerID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{
				"operationType":    bson.M{"$in": bson.A{"insert", "update", "replace"}},
				"fullDocument.uid": ownerID,
			},
			bson.M{"operationType": "delete"},
		}}}},
	}
}

// Watch opens a change stream for ownerID. The channel closes when ctx is
// done or the stream fails.
func (r *Repository) Watch(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := r.expenses().Watch(ctx, watchPipeline(ownerID), opts)
	if err != nil {
		return nil, fmt.Errorf("watch wydatki: %w: %w", core.ErrRemoteUnavailable, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "Change stream ended",
				"component", "storage",
				"owner_id", ownerID,
				"error", stream.Err())
		}
	}()
	return ch, nil
}

func (r *Repository) Load(ctx context.Context, ownerID string) (core.BudgetSettings, error) {
	var d userDoc
	err := r.users().FindOne(ctx, bson.M{"_id": ownerID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.BudgetSettings{}, fmt.Errorf("find user: %w: %w", core.ErrRemoteUnavailable, err)
	}
	s, err := core.ParseSettings(orZero(d.Budget), orZero(d.WeeklyLimit), orZero(d.MonthlyLimit), orZero(d.YearlyLimit))
	if err != nil {
		return core.BudgetSettings{}, fmt.Errorf("user %s: %w", ownerID, err)
	}
	s.UpdatedAt = d.UpdatedAt.UTC()
	return s, nil
}

func (r *Repository) Save(ctx context.Context, ownerID string, s core.BudgetSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{
		"budget":       s.Budget.String(),
		"weeklyLimit":  s.WeeklyLimit.String(),
		"monthlyLimit": s.MonthlyLimit.String(),
		"yearlyLimit":  s.YearlyLimit.String(),
		"updatedAt":    r.now().UTC().Truncate(time.Millisecond),
	}}
	_, err := r.users().UpdateOne(ctx, bson.M{"_id": ownerID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

// orZero treats a missing field as zero.
func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (d expenseDoc) record() (core.ExpenseRecord, error) {
	amount, err := core.ParseAmount(d.Cena)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("cena %q: %w: %w", d.Cena, core.ErrCorruptRecord, err)
	}
	at, err := core.ParseTimestamp(d.Data)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("data %q: %w: %w", d.Data, core.ErrCorruptRecord, err)
	}
	return core.ExpenseRecord{
		ID:           d.ID.Hex(),
		OwnerID:      d.UID,
		CategoryName: d.Nazwa,
		CategoryIcon: d.Icon,
		Amount:       amount,
		OccurredAt:   at,
	}, nil
}
