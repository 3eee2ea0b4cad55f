package mongodb

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DataStore is the subset of *mongo.Collection the repository uses.
type DataStore interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStream, error)
}

// ChangeStream is the subset of *mongo.ChangeStream the repository uses.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

// CollectionProvider hands out collections by name.
type CollectionProvider interface {
	Collection(name string) DataStore
}

// Collection adapts *mongo.Collection to DataStore.
type Collection struct {
	*mongo.Collection
}

func (c *Collection) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStream, error) {
	cs, err := c.Collection.Watch(ctx, pipeline, opts...)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// Provider adapts a database of *mongo.Client to CollectionProvider.
type Provider struct {
	client   *mongo.Client
	database string
}

func NewProvider(client *mongo.Client, database string) *Provider {
	return &Provider{client: client, database: database}
}

func (p *Provider) Collection(name string) DataStore {
	return &Collection{p.client.Database(p.database).Collection(name)}
}

// Ping checks the server connection.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, nil)
}

// Disconnect closes the client.
func (p *Provider) Disconnect(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}

// ConnectToMongoDB connects to uri and verifies the connection with a ping.
func ConnectToMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	slog.DebugContext(ctx, "Attempting to connect to MongoDB", "component", "storage")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	slog.InfoContext(ctx, "Connected to MongoDB", "component", "storage")
	return client, nil
}
