package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jjenkins/sorteio/internal/model"
	"github.com/jmoiron/sqlx"
)

const registrantColumns = `id, cpf, nome, "dataValidacao", sorteado, duplicado, observacao`

var errLostDraw = errors.New("draw candidate taken concurrently")

// PostgresStore keeps registrants in a pre-existing PostgreSQL table.
// Atomicity comes from row locks and conditional updates; the store holds
// no in-process locks.
type PostgresStore struct {
	db    *sqlx.DB
	table string
	opts  options
}

// NewPostgresStore creates a PostgresStore over the given table.
func NewPostgresStore(db *sqlx.DB, table string, opts ...Option) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: quoteTable(table),
		opts:  defaultOptions(opts),
	}
}

func (s *PostgresStore) selectWhere(ctx context.Context, where string, args ...any) ([]model.Registrant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY id`, registrantColumns, s.table, where)

	var registrants []model.Registrant
	if err := s.db.SelectContext(ctx, &registrants, query, args...); err != nil {
		return nil, err
	}
	return registrants, nil
}

// ListActive retrieves every non-duplicate registrant
func (s *PostgresStore) ListActive(ctx context.Context) ([]model.Registrant, error) {
	registrants, err := s.selectWhere(ctx, `duplicado = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrants: %w", err)
	}
	return registrants, nil
}

// ListValidated retrieves active registrants with a validation timestamp
func (s *PostgresStore) ListValidated(ctx context.Context) ([]model.Registrant, error) {
	registrants, err := s.selectWhere(ctx, `duplicado = 0 AND "dataValidacao" IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list validated registrants: %w", err)
	}
	return registrants, nil
}

// ListDrawn retrieves validated active registrants that were drawn
func (s *PostgresStore) ListDrawn(ctx context.Context) ([]model.Registrant, error) {
	registrants, err := s.selectWhere(ctx, `duplicado = 0 AND "dataValidacao" IS NOT NULL AND sorteado = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drawn registrants: %w", err)
	}
	return registrants, nil
}

// Get retrieves the active registrant for a CPF
func (s *PostgresStore) Get(ctx context.Context, cpf string) (*model.Registrant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE cpf = $1 AND duplicado = 0
		ORDER BY id
		LIMIT 1
	`, registrantColumns, s.table)

	var r model.Registrant
	err := s.db.GetContext(ctx, &r, query, cpf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registrant %s: %w", cpf, err)
	}

	return &r, nil
}

// Validate timestamps the active registrant for a CPF, creating it when
// opts.Force is set. Concurrent calls for the same CPF are serialized by a
// transaction-scoped advisory lock.
func (s *PostgresStore) Validate(ctx context.Context, cpf string, opts ValidateOptions) (ValidateStatus, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return StatusNotFound, fmt.Errorf("failed to begin validation of %s: %w", cpf, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := lockCPF(ctx, tx, cpf); err != nil {
		return StatusNotFound, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE cpf = $1 AND duplicado = 0
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`, registrantColumns, s.table)

	now := s.opts.now()

	var r model.Registrant
	err = tx.GetContext(ctx, &r, query, cpf)
	switch {
	case err == sql.ErrNoRows:
		if !opts.Force {
			return StatusNotFound, nil
		}
		insert := fmt.Sprintf(`
			INSERT INTO %s (cpf, "dataValidacao", sorteado, duplicado, observacao)
			VALUES ($1, $2, 0, 0, $3)
		`, s.table)
		if _, err := tx.ExecContext(ctx, insert, cpf, now, optionalString(opts.Observation)); err != nil {
			return StatusNotFound, fmt.Errorf("failed to create registrant %s: %w", cpf, err)
		}
	case err != nil:
		return StatusNotFound, fmt.Errorf("failed to load registrant %s: %w", cpf, err)
	case r.IsValidated():
		return StatusAlreadyValidated, nil
	default:
		update := fmt.Sprintf(`UPDATE %s SET "dataValidacao" = $2 WHERE id = $1`, s.table)
		if _, err := tx.ExecContext(ctx, update, r.ID, now); err != nil {
			return StatusNotFound, fmt.Errorf("failed to validate registrant %s: %w", cpf, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return StatusNotFound, fmt.Errorf("failed to commit validation of %s: %w", cpf, err)
	}
	return StatusValidated, nil
}

// DrawRandom picks one eligible registrant uniformly at random and flags it
// drawn. A draw that loses its candidate to a concurrent draw re-reads the
// eligible set.
func (s *PostgresStore) DrawRandom(ctx context.Context) (string, bool, error) {
	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		cpf, ok, err := s.drawOnce(ctx)
		if errors.Is(err, errLostDraw) {
			continue
		}
		return cpf, ok, err
	}
	return "", false, ErrDrawContention
}

type drawCandidate struct {
	ID  int64  `db:"id"`
	CPF string `db:"cpf"`
}

func (s *PostgresStore) drawOnce(ctx context.Context) (string, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to begin draw: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`
		SELECT id, cpf FROM %s
		WHERE "dataValidacao" IS NOT NULL AND sorteado = 0 AND duplicado = 0
		ORDER BY id
	`, s.table)

	var candidates []drawCandidate
	if err := tx.SelectContext(ctx, &candidates, query); err != nil {
		return "", false, fmt.Errorf("failed to load draw candidates: %w", err)
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	chosen := candidates[s.opts.picker.IntN(len(candidates))]

	update := fmt.Sprintf(`
		UPDATE %s SET sorteado = 1
		WHERE id = $1 AND sorteado = 0 AND duplicado = 0 AND "dataValidacao" IS NOT NULL
	`, s.table)
	result, err := tx.ExecContext(ctx, update, chosen.ID)
	if err != nil {
		return "", false, fmt.Errorf("failed to flag registrant %s as drawn: %w", chosen.CPF, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to read draw rows affected: %w", err)
	}
	if rows == 0 {
		return "", false, errLostDraw
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit draw: %w", err)
	}
	return chosen.CPF, true, nil
}

// ResetValidations clears the validation timestamp of every row
func (s *PostgresStore) ResetValidations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET "dataValidacao" = NULL`, s.table))
	if err != nil {
		return fmt.Errorf("failed to reset validations: %w", err)
	}
	return nil
}

// ResetDraws clears the drawn flag of every row
func (s *PostgresStore) ResetDraws(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET sorteado = 0`, s.table))
	if err != nil {
		return fmt.Errorf("failed to reset draws: %w", err)
	}
	return nil
}

// Import inserts registrants whose CPF has no active row, in one transaction
func (s *PostgresStore) Import(ctx context.Context, registrants []model.Registrant) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (cpf, nome, sorteado, duplicado, observacao)
		SELECT $1::text, $2::text, 0, 0, $3::text
		WHERE NOT EXISTS (SELECT 1 FROM %s WHERE cpf = $1::text AND duplicado = 0)
	`, s.table, s.table)

	inserted := 0
	for _, r := range registrants {
		if err := lockCPF(ctx, tx, r.CPF); err != nil {
			return 0, err
		}
		result, err := tx.ExecContext(ctx, query, r.CPF, r.Name, r.Observation)
		if err != nil {
			return 0, fmt.Errorf("failed to import registrant %s: %w", r.CPF, err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return inserted, nil
}

func lockCPF(ctx context.Context, tx *sqlx.Tx, cpf string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cpf); err != nil {
		return fmt.Errorf("failed to lock registrant %s: %w", cpf, err)
	}
	return nil
}
