package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateMessage signals that a message with the same provider message
// id is already stored. Provider redeliveries hit this path; it is not a
// failure.
var ErrDuplicateMessage = errors.New("crm: duplicate provider message id")

const uniqueViolation = "23505"

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the account-scoped CRM entities in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

func (s *Store) querier(q Querier) Querier {
	if q == nil {
		return s.pool
	}
	return q
}

// FindCustomerByPhone matches on the canonical digit string within the
// account. Returns nil without error when no customer matches.
func (s *Store) FindCustomerByPhone(ctx context.Context, q Querier, accountID uuid.UUID, phoneNormalized string) (*Customer, error) {
	q = s.querier(q)
	query := `
		SELECT id, account_id, display_name, phone, phone_normalized, status, kind, created_at
		FROM customers
		WHERE account_id = $1 AND phone_normalized = $2
		ORDER BY created_at
		LIMIT 1
	`
	var c Customer
	err := q.QueryRow(ctx, query, accountID, phoneNormalized).
		Scan(&c.ID, &c.AccountID, &c.DisplayName, &c.Phone, &c.PhoneNormalized, &c.Status, &c.Kind, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crm: find customer by phone: %w", err)
	}
	return &c, nil
}

// InsertCustomer writes a new customer row. A unique-violation on
// (account_id, phone_normalized) means a concurrent request created the
// customer first; callers should re-select.
func (s *Store) InsertCustomer(ctx context.Context, q Querier, c Customer) (uuid.UUID, error) {
	q = s.querier(q)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO customers (id, account_id, display_name, phone, phone_normalized, status, kind,
			address_line1, address_line2, city, region, postal_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`
	var id uuid.UUID
	err := q.QueryRow(ctx, query, c.ID, c.AccountID, c.DisplayName, c.Phone, c.PhoneNormalized,
		c.Status, c.Kind, c.AddressLine1, c.AddressLine2, c.City, c.Region, c.PostalCode).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("crm: insert customer: %w", err)
	}
	return id, nil
}

// LatestLiveWorkRecord returns the customer's most recently created record
// still in {open, scheduled}, or nil when none exists.
func (s *Store) LatestLiveWorkRecord(ctx context.Context, q Querier, accountID, customerID uuid.UUID) (*WorkRecord, error) {
	q = s.querier(q)
	query := `
		SELECT id, code, account_id, customer_id, status, title, source, created_at
		FROM work_records
		WHERE account_id = $1 AND customer_id = $2 AND status = ANY($3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	var w WorkRecord
	err := q.QueryRow(ctx, query, accountID, customerID, []string{WorkStatusOpen, WorkStatusScheduled}).
		Scan(&w.ID, &w.Code, &w.AccountID, &w.CustomerID, &w.Status, &w.Title, &w.Source, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crm: latest live work record: %w", err)
	}
	return &w, nil
}

// NextWorkRecordNumber atomically advances the account's job counter. The
// counter replaces the old scan-highest-suffix-and-increment scheme, which
// raced under concurrent webhook delivery.
func (s *Store) NextWorkRecordNumber(ctx context.Context, q Querier, accountID uuid.UUID) (int64, error) {
	q = s.querier(q)
	query := `
		INSERT INTO work_record_counters (account_id, next_code)
		VALUES ($1, 1)
		ON CONFLICT (account_id)
		DO UPDATE SET next_code = work_record_counters.next_code + 1
		RETURNING next_code
	`
	var n int64
	if err := q.QueryRow(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("crm: next work record number: %w", err)
	}
	return n, nil
}

func (s *Store) InsertWorkRecord(ctx context.Context, q Querier, w WorkRecord) (uuid.UUID, error) {
	q = s.querier(q)
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	query := `
		INSERT INTO work_records (id, code, account_id, customer_id, status, title, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`
	var id uuid.UUID
	err := q.QueryRow(ctx, query, w.ID, w.Code, w.AccountID, w.CustomerID, w.Status, w.Title, w.Source).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("crm: insert work record: %w", err)
	}
	return id, nil
}

// FindActiveConversation returns the newest active conversation for the
// (customer, work record) pair, or nil when none exists.
func (s *Store) FindActiveConversation(ctx context.Context, q Querier, customerID, workRecordID uuid.UUID) (*Conversation, error) {
	q = s.querier(q)
	query := `
		SELECT id, account_id, customer_id, work_record_id, status, last_message_at, created_at
		FROM conversations
		WHERE customer_id = $1 AND work_record_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	var c Conversation
	err := q.QueryRow(ctx, query, customerID, workRecordID, ConversationStatusActive).
		Scan(&c.ID, &c.AccountID, &c.CustomerID, &c.WorkRecordID, &c.Status, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crm: find active conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) InsertConversation(ctx context.Context, q Querier, c Conversation) (uuid.UUID, error) {
	q = s.querier(q)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO conversations (id, account_id, customer_id, work_record_id, status, last_message_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`
	var id uuid.UUID
	err := q.QueryRow(ctx, query, c.ID, c.AccountID, c.CustomerID, c.WorkRecordID, c.Status, c.LastMessageAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("crm: insert conversation: %w", err)
	}
	return id, nil
}

// TouchConversation advances last_message_at. The GREATEST guard keeps the
// column monotonic under out-of-order redeliveries.
func (s *Store) TouchConversation(ctx context.Context, q Querier, conversationID uuid.UUID, at time.Time) error {
	q = s.querier(q)
	query := `
		UPDATE conversations
		SET last_message_at = GREATEST(last_message_at, $2)
		WHERE id = $1
	`
	if _, err := q.Exec(ctx, query, conversationID, at); err != nil {
		return fmt.Errorf("crm: touch conversation: %w", err)
	}
	return nil
}

// InsertMessage appends an immutable message row. A unique-violation on the
// provider message id maps to ErrDuplicateMessage.
func (s *Store) InsertMessage(ctx context.Context, q Querier, m Message) (uuid.UUID, error) {
	q = s.querier(q)
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO messages (id, account_id, conversation_id, body, direction, sender, recipient,
			delivery_status, provider_message_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9, ''))
		RETURNING id
	`
	var id uuid.UUID
	err := q.QueryRow(ctx, query, m.ID, m.AccountID, m.ConversationID, m.Body, m.Direction,
		m.Sender, m.Recipient, m.DeliveryStatus, m.ProviderMessageID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateMessage, m.ProviderMessageID)
		}
		return uuid.Nil, fmt.Errorf("crm: insert message: %w", err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
