package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const accountKey ctxKey = "fieldline.account_id"

// WithAccountID stores the resolved account id in context.
func WithAccountID(ctx context.Context, accountID uuid.UUID) context.Context {
	return context.WithValue(ctx, accountKey, accountID)
}

// AccountIDFromContext extracts the account id if present.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(accountKey)
	if val == nil {
		return uuid.Nil, false
	}
	accountID, ok := val.(uuid.UUID)
	return accountID, ok && accountID != uuid.Nil
}
