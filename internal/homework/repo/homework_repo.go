package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/homework/entity"
)

var ErrNotFound = errors.New("homework not found")

// Repo is the sqlx-backed store for homework and submissions.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the homework and submission tables and their index.
func (r *Repo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS homework (
			id BIGINT PRIMARY KEY,
			subject TEXT NOT NULL,
			name TEXT NOT NULL,
			create_date TEXT NOT NULL,
			due_date TEXT NOT NULL,
			uid TEXT NOT NULL,
			class TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_homework_class_status ON homework (class, status)`,
		`CREATE TABLE IF NOT EXISTS submission (
			id BIGINT NOT NULL,
			uid TEXT NOT NULL,
			submit_date TEXT NOT NULL,
			submission_status INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (id, uid)
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a homework row with status pending.
func (r *Repo) Create(ctx context.Context, h *entity.Homework) error {
	q := r.db.Rebind(`INSERT INTO homework (id, subject, name, create_date, due_date, uid, class, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, h.ID, h.Subject, h.Name, h.CreateDate, h.DueDate, h.UID, h.Class, h.Status); err != nil {
		return fmt.Errorf("create homework: %w", err)
	}
	return nil
}

// Pending lists homework for a class that has not been confirmed.
func (r *Repo) Pending(ctx context.Context, class string) ([]entity.Item, error) {
	q := r.db.Rebind(`SELECT id, subject, name, due_date FROM homework
		WHERE class = ? AND status = 0 ORDER BY due_date, id`)
	items := []entity.Item{}
	if err := r.db.SelectContext(ctx, &items, q, class); err != nil {
		return nil, fmt.Errorf("list pending homework: %w", err)
	}
	return items, nil
}

// Submissions lists homework the student has a submission for.
func (r *Repo) Submissions(ctx context.Context, uid string) ([]entity.Item, error) {
	q := r.db.Rebind(`SELECT homework.id, homework.subject, homework.name, homework.due_date, submission.submission_status
		FROM homework INNER JOIN submission ON homework.id = submission.id
		WHERE submission.uid = ? ORDER BY homework.due_date, homework.id`)
	items := []entity.Item{}
	if err := r.db.SelectContext(ctx, &items, q, uid); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return items, nil
}

// Confirm marks the homework confirmed and records the student's submission
// in one transaction. A repeated confirmation updates the submission.
func (r *Repo) Confirm(ctx context.Context, id int64, uid, date string, status int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE homework SET status = 1 WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("confirm homework: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	q := tx.Rebind(`INSERT INTO submission (id, uid, submit_date, submission_status) VALUES (?, ?, ?, ?)
		ON CONFLICT (id, uid) DO UPDATE SET submit_date = excluded.submit_date, submission_status = excluded.submission_status`)
	if _, err := tx.ExecContext(ctx, q, id, uid, date, status); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return tx.Commit()
}
