package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldlinehq/fieldline/internal/phone"
	"github.com/fieldlinehq/fieldline/pkg/logging"
)

// ErrAccountNotFound is returned when no active number maps to an account.
// An unroutable destination is a configuration problem, never a retryable
// one: nothing tenant-scoped may be created without an owner.
var ErrAccountNotFound = errors.New("tenancy: no active account owns number")

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Resolver maps a destination phone number to its owning account by matching
// the pool of numbers each account controls. Numbers persisted before
// normalization existed may be stored under any textual variant, so the
// lookup matches the canonical digits column first and the legacy variants
// as a fallback, restricted to active numbers.
type Resolver struct {
	pool   rowQuerier
	logger *logging.Logger
}

func NewResolver(pool rowQuerier, logger *logging.Logger) *Resolver {
	if pool == nil {
		panic("tenancy: pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{pool: pool, logger: logger}
}

// ResolveAccount returns the account owning toNumber, or ErrAccountNotFound.
func (r *Resolver) ResolveAccount(ctx context.Context, toNumber string) (uuid.UUID, error) {
	normalized := phone.National(toNumber)
	if normalized == "" {
		return uuid.Nil, ErrAccountNotFound
	}
	variants := phone.Variants(toNumber)

	query := `
		SELECT account_id
		FROM phone_numbers
		WHERE status = 'active'
			AND (number_normalized = $1 OR number = ANY($2))
		ORDER BY created_at
		LIMIT 1
	`
	var accountID uuid.UUID
	if err := r.pool.QueryRow(ctx, query, normalized, variants).Scan(&accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("destination number not owned by any active account",
				"to", toNumber,
				"normalized", normalized,
				"candidates", variants,
			)
			return uuid.Nil, fmt.Errorf("%w: %s", ErrAccountNotFound, normalized)
		}
		return uuid.Nil, fmt.Errorf("tenancy: lookup account by number: %w", err)
	}
	return accountID, nil
}
