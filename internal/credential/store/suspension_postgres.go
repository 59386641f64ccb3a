package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
)

// PostgresSuspensionStore persists admin suspensions.
type PostgresSuspensionStore struct {
	db *sql.DB
}

func NewPostgresSuspensions(db *sql.DB) *PostgresSuspensionStore {
	return &PostgresSuspensionStore{db: db}
}

func (s *PostgresSuspensionStore) Get(ctx context.Context, ownerID id.OwnerID) (*models.Suspension, error) {
	var (
		sus         models.Suspension
		suspendedBy uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT reason, suspended_by, suspended_at
		FROM owner_suspensions
		WHERE owner_id = $1
	`, uuid.UUID(ownerID)).Scan(&sus.Reason, &suspendedBy, &sus.SuspendedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find suspension: %w", err)
	}
	sus.OwnerID = ownerID
	sus.SuspendedBy = id.ActorID(suspendedBy)
	return &sus, nil
}

func (s *PostgresSuspensionStore) Put(ctx context.Context, sus models.Suspension) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO owner_suspensions (owner_id, reason, suspended_by, suspended_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO NOTHING
	`, uuid.UUID(sus.OwnerID), sus.Reason, uuid.UUID(sus.SuspendedBy), sus.SuspendedAt)
	if err != nil {
		return fmt.Errorf("insert suspension: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresSuspensionStore) Delete(ctx context.Context, ownerID id.OwnerID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM owner_suspensions WHERE owner_id = $1`, uuid.UUID(ownerID))
	if err != nil {
		return fmt.Errorf("delete suspension: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
