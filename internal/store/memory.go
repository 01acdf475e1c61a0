package store

import (
	"context"
	"sync"

	"github.com/jjenkins/sorteio/internal/model"
)

// MemoryStore is an in-process Store used for tests and local runs.
// A single mutex makes every operation an atomic read-modify-write.
type MemoryStore struct {
	mu     sync.Mutex
	rows   []model.Registrant
	nextID int64
	opts   options
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		opts:   defaultOptions(opts),
	}
}

// Seed appends raw rows, duplicates included, bypassing every rule.
// Rows without an ID get the next surrogate key.
func (s *MemoryStore) Seed(rows ...model.Registrant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r.ID == 0 {
			r.ID = s.nextID
		}
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
		s.rows = append(s.rows, r)
	}
}

func (s *MemoryStore) filter(keep func(model.Registrant) bool) []model.Registrant {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Registrant
	for _, r := range s.rows {
		if !bool(r.Duplicate) && keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// activeIndex returns the position of the active row for cpf, or -1.
// Callers must hold mu.
func (s *MemoryStore) activeIndex(cpf string) int {
	for i, r := range s.rows {
		if r.CPF == cpf && !bool(r.Duplicate) {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]model.Registrant, error) {
	return s.filter(func(model.Registrant) bool { return true }), nil
}

func (s *MemoryStore) ListValidated(ctx context.Context) ([]model.Registrant, error) {
	return s.filter(model.Registrant.IsValidated), nil
}

func (s *MemoryStore) ListDrawn(ctx context.Context) ([]model.Registrant, error) {
	return s.filter(func(r model.Registrant) bool {
		return r.IsValidated() && bool(r.Drawn)
	}), nil
}

func (s *MemoryStore) Get(ctx context.Context, cpf string) (*model.Registrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.activeIndex(cpf)
	if i < 0 {
		return nil, nil
	}
	r := s.rows[i]
	return &r, nil
}

func (s *MemoryStore) Validate(ctx context.Context, cpf string, opts ValidateOptions) (ValidateStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()

	i := s.activeIndex(cpf)
	switch {
	case i < 0 && !opts.Force:
		return StatusNotFound, nil
	case i < 0:
		s.rows = append(s.rows, model.Registrant{
			ID:          s.nextID,
			CPF:         cpf,
			ValidatedAt: &now,
			Observation: optionalString(opts.Observation),
		})
		s.nextID++
	case s.rows[i].IsValidated():
		return StatusAlreadyValidated, nil
	default:
		s.rows[i].ValidatedAt = &now
	}
	return StatusValidated, nil
}

func (s *MemoryStore) DrawRandom(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []int
	for i, r := range s.rows {
		if r.Eligible() {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	chosen := candidates[s.opts.picker.IntN(len(candidates))]
	s.rows[chosen].Drawn = true
	return s.rows[chosen].CPF, true, nil
}

func (s *MemoryStore) ResetValidations(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		s.rows[i].ValidatedAt = nil
	}
	return nil
}

func (s *MemoryStore) ResetDraws(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		s.rows[i].Drawn = false
	}
	return nil
}

func (s *MemoryStore) Import(ctx context.Context, registrants []model.Registrant) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range registrants {
		if s.activeIndex(r.CPF) >= 0 {
			continue
		}
		s.rows = append(s.rows, model.Registrant{
			ID:          s.nextID,
			CPF:         r.CPF,
			Name:        r.Name,
			Observation: r.Observation,
		})
		s.nextID++
		inserted++
	}
	return inserted, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
