package store

import (
	"context"
	"errors"
	"time"

	"github.com/jjenkins/sorteio/internal/model"
)

// ErrDrawContention is returned when every draw attempt lost its candidate
// to a concurrent draw.
var ErrDrawContention = errors.New("draw contention: candidates kept being taken by concurrent draws")

// maxDrawAttempts bounds how often a draw re-reads the eligible set after
// losing the conditional update.
const maxDrawAttempts = 5

// ValidateStatus is the outcome of a validation request.
type ValidateStatus int

const (
	// StatusNotFound means no active record exists and creation was not forced.
	StatusNotFound ValidateStatus = iota
	// StatusValidated means a record was validated or created validated.
	StatusValidated
	// StatusAlreadyValidated means the record was validated before; nothing changed.
	StatusAlreadyValidated
)

func (s ValidateStatus) String() string {
	switch s {
	case StatusValidated:
		return "validated"
	case StatusAlreadyValidated:
		return "already_validated"
	default:
		return "not_found"
	}
}

// ValidateOptions controls Validate when no active record exists.
type ValidateOptions struct {
	// Force creates a validated record when the CPF is unknown.
	Force bool
	// Observation is stored on records created by a forced validation.
	Observation string
}

// Store owns registrant state and enforces the validate/draw/reset rules.
// Duplicate rows are invisible to every method.
type Store interface {
	ListActive(ctx context.Context) ([]model.Registrant, error)
	ListValidated(ctx context.Context) ([]model.Registrant, error)
	// Get returns nil, nil when no active record has the CPF.
	Get(ctx context.Context, cpf string) (*model.Registrant, error)
	Validate(ctx context.Context, cpf string, opts ValidateOptions) (ValidateStatus, error)
	// DrawRandom flags one eligible registrant as drawn and returns its CPF.
	// ok is false when nobody is eligible.
	DrawRandom(ctx context.Context) (cpf string, ok bool, err error)
	ListDrawn(ctx context.Context) ([]model.Registrant, error)
	ResetValidations(ctx context.Context) error
	ResetDraws(ctx context.Context) error
	// Import inserts registrants whose CPF has no active record and
	// returns how many were inserted.
	Import(ctx context.Context, registrants []model.Registrant) (int, error)
}

// ValidateExisting validates a registrant that must already exist.
func ValidateExisting(ctx context.Context, s Store, cpf string) (ValidateStatus, error) {
	return s.Validate(ctx, cpf, ValidateOptions{})
}

// RegisterAndValidate validates a registrant, creating it when absent.
func RegisterAndValidate(ctx context.Context, s Store, cpf, observation string) (ValidateStatus, error) {
	return s.Validate(ctx, cpf, ValidateOptions{Force: true, Observation: observation})
}

// Option configures a Store implementation.
type Option func(*options)

type options struct {
	picker Picker
	now    func() time.Time
}

func defaultOptions(opts []Option) options {
	o := options{
		picker: NewPicker(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPicker replaces the random source used by DrawRandom.
func WithPicker(p Picker) Option {
	return func(o *options) {
		o.picker = p
	}
}

// WithClock replaces the clock used for validation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
