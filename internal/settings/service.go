package settings

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid settings")

// Settings are the runtime-tunable retrieval knobs. They live in a single
// database row so operators can adjust search behavior without a redeploy.
type Settings struct {
	ID                  int     `json:"-"`
	SearchTopK          int     `json:"search_top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

func (s *Settings) Validate() error {
	if s.SearchTopK < 1 {
		return fmt.Errorf("%w: search_top_k must be at least 1, got %d", ErrInvalid, s.SearchTopK)
	}
	if s.SimilarityThreshold < -1 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [-1, 1], got %g", ErrInvalid, s.SimilarityThreshold)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}

// Tuning satisfies the search tuner contract. Errors bubble up so callers
// can fall back to their configured defaults.
func (s *Service) Tuning(ctx context.Context) (int, float64, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return 0, 0, err
	}
	return set.SearchTopK, set.SimilarityThreshold, nil
}
