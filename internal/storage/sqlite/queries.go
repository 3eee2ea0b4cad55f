package sqlite

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL used by the repository, one method per statement.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Wydatek is a row of the wydatki table.
type Wydatek struct {
	ID    string
	UID   string
	Nazwa string
	Cena  string
	Icon  string
	Data  string
}

// User is a row of the users table.
type User struct {
	UID          string
	Budget       string
	WeeklyLimit  string
	MonthlyLimit string
	YearlyLimit  string
	UpdatedAt    string
}

const listWydatkiByOwner = `SELECT id, uid, nazwa, cena, icon, data
FROM wydatki
WHERE uid = ?
ORDER BY data DESC, id DESC`

func (q *Queries) ListWydatkiByOwner(ctx context.Context, uid string) ([]Wydatek, error) {
	rows, err := q.db.QueryContext(ctx, listWydatkiByOwner, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Wydatek{}
	for rows.Next() {
		var i Wydatek
		if err := rows.Scan(&i.ID, &i.UID, &i.Nazwa, &i.Cena, &i.Icon, &i.Data); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getWydatek = `SELECT id, uid, nazwa, cena, icon, data
FROM wydatki
WHERE id = ? AND uid = ?`

func (q *Queries) GetWydatek(ctx context.Context, id, uid string) (Wydatek, error) {
	var i Wydatek
	err := q.db.QueryRowContext(ctx, getWydatek, id, uid).
		Scan(&i.ID, &i.UID, &i.Nazwa, &i.Cena, &i.Icon, &i.Data)
	return i, err
}

const createWydatek = `INSERT INTO wydatki (id, uid, nazwa, cena, icon, data)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateWydatek(ctx context.Context, w Wydatek) error {
	_, err := q.db.ExecContext(ctx, createWydatek, w.ID, w.UID, w.Nazwa, w.Cena, w.Icon, w.Data)
	return err
}

const updateWydatek = `UPDATE wydatki
SET nazwa = ?, cena = ?, icon = ?
WHERE id = ? AND uid = ?`

// UpdateWydatek returns the number of rows changed.
func (q *Queries) UpdateWydatek(ctx context.Context, id, uid, nazwa, cena, icon string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateWydatek, nazwa, cena, icon, id, uid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteWydatek = `DELETE FROM wydatki WHERE id = ? AND uid = ?`

func (q *Queries) DeleteWydatek(ctx context.Context, id, uid string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteWydatek, id, uid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getUser = `SELECT uid, budget, weeklyLimit, monthlyLimit, yearlyLimit, updatedAt
FROM users
WHERE uid = ?`

func (q *Queries) GetUser(ctx context.Context, uid string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, uid).
		Scan(&u.UID, &u.Budget, &u.WeeklyLimit, &u.MonthlyLimit, &u.YearlyLimit, &u.UpdatedAt)
	return u, err
}

const upsertUser = `INSERT INTO users (uid, budget, weeklyLimit, monthlyLimit, yearlyLimit, updatedAt)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (uid) DO UPDATE SET
    budget = excluded.budget,
    weeklyLimit = excluded.weeklyLimit,
    monthlyLimit = excluded.monthlyLimit,
    yearlyLimit = excluded.yearlyLimit,
    updatedAt = excluded.updatedAt`

func (q *Queries) UpsertUser(ctx context.Context, u User) error {
	_, err := q.db.ExecContext(ctx, upsertUser, u.UID, u.Budget, u.WeeklyLimit, u.MonthlyLimit, u.YearlyLimit, u.UpdatedAt)
	return err
}
