package repo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/ec/entity"
)

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the ec and attendance tables. The users table must
// already exist for the teacher join.
func (r *Repo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ec (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			teacher TEXT NOT NULL DEFAULT '',
			cost DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			uid TEXT NOT NULL,
			ec_id BIGINT NOT NULL,
			date TEXT NOT NULL,
			year INTEGER NOT NULL,
			PRIMARY KEY (uid, ec_id, year)
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts an activity; teacher is the teacher's uid.
func (r *Repo) Create(ctx context.Context, id int64, name, description, teacher string, cost float64) error {
	q := r.db.Rebind(`INSERT INTO ec (id, name, description, teacher, cost) VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, id, name, description, teacher, cost)
	return err
}

const selectEC = `SELECT ec.id, ec.name, ec.description, COALESCE(users.chi_name, '') AS teacher, ec.cost
	FROM %s LEFT JOIN users ON ec.teacher = users.uid`

func (r *Repo) List(ctx context.Context) ([]entity.EC, error) {
	q := fmt.Sprintf(selectEC, "ec") + ` ORDER BY ec.id`
	ecs := []entity.EC{}
	if err := r.db.SelectContext(ctx, &ecs, q); err != nil {
		return nil, fmt.Errorf("list ec: %w", err)
	}
	return ecs, nil
}

// Attendance lists the activities uid has joined.
func (r *Repo) Attendance(ctx context.Context, uid string) ([]entity.EC, error) {
	q := r.db.Rebind(fmt.Sprintf(selectEC, "attendance INNER JOIN ec ON ec.id = attendance.ec_id") +
		` WHERE attendance.uid = ? ORDER BY attendance.year DESC, ec.id`)
	ecs := []entity.EC{}
	if err := r.db.SelectContext(ctx, &ecs, q, uid); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return ecs, nil
}

// Join records uid in each existing activity of ids for year, in one
// transaction. Unknown ids and activities already joined this year are
// skipped. It returns how many rows were added.
func (r *Repo) Join(ctx context.Context, uid string, ids []int64, date string, year int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	q := tx.Rebind(`INSERT INTO attendance (uid, ec_id, date, year)
		SELECT CAST(? AS TEXT), id, CAST(? AS TEXT), CAST(? AS INTEGER) FROM ec WHERE id = ?
		ON CONFLICT (uid, ec_id, year) DO NOTHING`)
	joined := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, q, uid, date, year, id)
		if err != nil {
			return 0, fmt.Errorf("join ec %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		joined += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return joined, nil
}
