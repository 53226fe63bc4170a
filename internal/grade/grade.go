// Package grade serves a student's assessment results.
package grade

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

// Grade is one result row. Type is the assessment kind (test, exam, ...).
type Grade struct {
	Subject string  `db:"subject" json:"subject"`
	Type    string  `db:"type" json:"type"`
	Score   float64 `db:"score" json:"score"`
	Year    int     `db:"year" json:"year"`
}

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

func (r *Repo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS grade (
			uid TEXT NOT NULL,
			subject TEXT NOT NULL,
			type TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			year INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grade_uid ON grade (uid)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// List returns every grade for uid, newest year first.
func (r *Repo) List(ctx context.Context, uid string) ([]Grade, error) {
	q := r.db.Rebind(`SELECT subject, type, score, year FROM grade WHERE uid = ? ORDER BY year DESC, subject`)
	grades := []Grade{}
	if err := r.db.SelectContext(ctx, &grades, q, uid); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// Add records one result for uid.
func (r *Repo) Add(ctx context.Context, uid string, g Grade) error {
	q := r.db.Rebind(`INSERT INTO grade (uid, subject, type, score, year) VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, uid, g.Subject, g.Type, g.Score, g.Year)
	return err
}

type Handler struct {
	repo   *Repo
	logger *zap.SugaredLogger
}

func NewHandler(repo *Repo, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /grade/{uid}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	grades, err := h.repo.List(r.Context(), uid)
	if err != nil {
		h.logger.Errorw("list grades failed", "uid", uid, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "list grades failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, grades)
}
