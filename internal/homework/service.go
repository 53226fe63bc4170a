// Package homework lists, assigns and confirms homework for a class.
package homework

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/homework/entity"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/homework/repo"
	userentity "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/utilities"
)

// List kinds accepted by Service.List.
const (
	ListPending   = 0
	ListSubmitted = 1
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// ProfileLookup is satisfied by *userrepo.UserRepo.
type ProfileLookup interface {
	GetProfile(ctx context.Context, uid string) (*userentity.Profile, error)
}

type Service struct {
	repo  *repo.Repo
	users ProfileLookup
	now   func() time.Time
	newID func() (int64, error)
}

func NewService(r *repo.Repo, users ProfileLookup) *Service {
	return &Service{repo: r, users: users, now: time.Now, newID: utilities.NewSnowflakeID}
}

// List returns the pending homework of uid's class (ListPending) or uid's
// submissions (ListSubmitted).
func (s *Service) List(ctx context.Context, uid string, kind int) ([]entity.Item, error) {
	switch kind {
	case ListPending:
		p, err := s.profile(ctx, uid)
		if err != nil {
			return nil, err
		}
		return s.repo.Pending(ctx, p.ClassName())
	case ListSubmitted:
		return s.repo.Submissions(ctx, uid)
	default:
		return nil, fmt.Errorf("%w: unknown list type %d", ErrInvalidInput, kind)
	}
}

// CreateInput is the teacher-supplied part of a homework row.
type CreateInput struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	DueDate string `json:"due_date"`
	Class   string `json:"class"`
}

// Create assigns homework to a class on behalf of creator.
func (s *Service) Create(ctx context.Context, creator string, in CreateInput) (*entity.Homework, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Name = strings.TrimSpace(in.Name)
	in.Class = strings.TrimSpace(in.Class)
	if in.Subject == "" || in.Name == "" || in.Class == "" {
		return nil, fmt.Errorf("%w: subject, name and class are required", ErrInvalidInput)
	}
	if _, err := time.Parse(dateLayout, in.DueDate); err != nil {
		return nil, fmt.Errorf("%w: due_date must be YYYY-MM-DD", ErrInvalidInput)
	}
	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	h := &entity.Homework{
		ID:         id,
		Subject:    in.Subject,
		Name:       in.Name,
		CreateDate: s.now().UTC().Format(dateLayout),
		DueDate:    in.DueDate,
		UID:        creator,
		Class:      in.Class,
		Status:     entity.StatusPending,
	}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Confirm records uid's submission of homework id with the given status.
func (s *Service) Confirm(ctx context.Context, id int64, uid string, status int) error {
	if status < 0 {
		return fmt.Errorf("%w: negative submission status", ErrInvalidInput)
	}
	if _, err := s.profile(ctx, uid); err != nil {
		return err
	}
	err := s.repo.Confirm(ctx, id, uid, s.now().UTC().Format(dateLayout), status)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: homework %d", ErrNotFound, id)
	}
	return err
}

func (s *Service) profile(ctx context.Context, uid string) (*userentity.Profile, error) {
	p, err := s.users.GetProfile(ctx, uid)
	if errors.Is(err, userrepo.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, uid)
	}
	return p, err
}
