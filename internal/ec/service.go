// Package ec lists extracurricular activities and records who joins them.
package ec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/ec/entity"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/ec/repo"
)

// MaxJoin is how many activities can be joined in one request.
const MaxJoin = 3

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNoneJoined   = errors.New("no activity joined")
)

type Service struct {
	repo *repo.Repo
	now  func() time.Time
}

func NewService(r *repo.Repo) *Service {
	return &Service{repo: r, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]entity.EC, error) {
	return s.repo.List(ctx)
}

func (s *Service) Attendance(ctx context.Context, uid string) ([]entity.EC, error) {
	return s.repo.Attendance(ctx, uid)
}

// Join enrols uid in up to MaxJoin activities for the current year. Ids
// below 1 are ignored. ErrNoneJoined is returned when nothing was added.
func (s *Service) Join(ctx context.Context, uid string, ids []int64) (int, error) {
	if len(ids) > MaxJoin {
		return 0, fmt.Errorf("%w: at most %d activities per request", ErrInvalidInput, MaxJoin)
	}
	valid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id >= 1 {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, ErrNoneJoined
	}
	now := s.now().UTC()
	n, err := s.repo.Join(ctx, uid, valid, now.Format("2006-01-02"), now.Year())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoneJoined
	}
	return n, nil
}
