package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fieldlinehq/fieldline/internal/events"
	"github.com/fieldlinehq/fieldline/internal/phone"
	"github.com/fieldlinehq/fieldline/internal/tenancy"
	"github.com/fieldlinehq/fieldline/pkg/logging"
)

var cascadeTracer = otel.Tracer("fieldline.internal.crm.cascade")

// Work record attachment policies. ReuseOpen attaches new inbound messages to
// the customer's latest live record; AlwaysNew starts a fresh record per
// first contact on a conversation.
const (
	PolicyReuseOpen = "reuse_open"
	PolicyAlwaysNew = "always_new"
)

// Inbound carries a routed, actionable message into the cascade. The account
// is already resolved; every write below is scoped to it.
type Inbound struct {
	AccountID         uuid.UUID
	From              string
	To                string
	Text              string
	Provider          string
	ProviderMessageID string
	ProviderEventID   string
	OccurredAt        time.Time
}

// Resolution reports what the cascade found or created.
type Resolution struct {
	Customer     Customer
	WorkRecord   WorkRecord
	Conversation Conversation
	Message      Message

	CreatedCustomer     bool
	CreatedWorkRecord   bool
	CreatedConversation bool
	Duplicate           bool
}

// Cascade runs the find-or-create chain customer → work record →
// conversation → message inside a single transaction, so a failure partway
// through never leaves an orphaned entity behind.
type Cascade struct {
	store  *Store
	lock   *SenderLock
	policy string
	logger *logging.Logger
	now    func() time.Time
}

type CascadeConfig struct {
	Store  *Store
	Lock   *SenderLock
	Policy string
	Logger *logging.Logger
	Now    func() time.Time
}

func NewCascade(cfg CascadeConfig) *Cascade {
	if cfg.Store == nil {
		panic("crm: store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	policy := cfg.Policy
	if policy != PolicyAlwaysNew {
		policy = PolicyReuseOpen
	}
	return &Cascade{
		store:  cfg.Store,
		lock:   cfg.Lock,
		policy: policy,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// Resolve runs the cascade. A redelivered provider message id commits the
// find-or-create work done so far and reports Duplicate rather than failing,
// so providers that retry aggressively converge on the same entities.
func (c *Cascade) Resolve(ctx context.Context, in Inbound) (*Resolution, error) {
	ctx, span := cascadeTracer.Start(ctx, "crm.cascade.resolve")
	defer span.End()

	if in.AccountID == uuid.Nil {
		return nil, errors.New("crm: account id required")
	}
	// Writes below are scoped by in.AccountID; a context carrying a different
	// tenant means the caller mixed up requests.
	if ctxAccount, ok := tenancy.AccountIDFromContext(ctx); ok && ctxAccount != in.AccountID {
		return nil, fmt.Errorf("crm: account scope mismatch: context %s, inbound %s", ctxAccount, in.AccountID)
	}
	sender := phone.National(in.From)
	if sender == "" || phone.National(in.To) == "" {
		return nil, errors.New("crm: sender and recipient numbers required")
	}

	release, err := c.lock.Acquire(ctx, in.AccountID, sender)
	if err != nil {
		// Advisory only: the unique constraints below keep concurrent
		// deliveries from duplicating entities.
		c.logger.Warn("proceeding without sender lock", "error", err, "account_id", in.AccountID)
	}
	defer release()

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("crm: begin cascade tx: %w", err)
	}
	defer tx.Rollback(ctx)

	res := &Resolution{}

	res.Customer, res.CreatedCustomer, err = c.resolveCustomer(ctx, tx, in.AccountID, in.From, sender)
	if err != nil {
		return nil, err
	}

	res.WorkRecord, res.CreatedWorkRecord, err = c.resolveWorkRecord(ctx, tx, in.AccountID, res.Customer)
	if err != nil {
		return nil, err
	}

	now := in.OccurredAt.UTC()
	if in.OccurredAt.IsZero() {
		now = c.now().UTC()
	}
	res.Conversation, res.CreatedConversation, err = c.resolveConversation(ctx, tx, in.AccountID, res.Customer.ID, res.WorkRecord.ID, now)
	if err != nil {
		return nil, err
	}

	msg := Message{
		AccountID:         in.AccountID,
		ConversationID:    res.Conversation.ID,
		Body:              in.Text,
		Direction:         DirectionInbound,
		Sender:            in.From,
		Recipient:         in.To,
		DeliveryStatus:    DeliveryStatusDelivered,
		ProviderMessageID: in.ProviderMessageID,
		CreatedAt:         now,
	}
	msgID, err := c.store.InsertMessage(ctx, tx, msg)
	if errors.Is(err, ErrDuplicateMessage) {
		res.Duplicate = true
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, fmt.Errorf("crm: commit cascade: %w", commitErr)
		}
		c.logger.Info("duplicate provider message ignored",
			"account_id", in.AccountID,
			"provider_message_id", in.ProviderMessageID,
		)
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	msg.ID = msgID
	res.Message = msg

	received := events.MessageReceivedV1{
		MessageID:         msgID.String(),
		AccountID:         in.AccountID.String(),
		CustomerID:        res.Customer.ID.String(),
		WorkRecordID:      res.WorkRecord.ID.String(),
		ConversationID:    res.Conversation.ID.String(),
		From:              in.From,
		To:                in.To,
		BodyLength:        len(in.Text),
		Provider:          in.Provider,
		ProviderMessageID: in.ProviderMessageID,
		ReceivedAt:        now,
	}
	if _, err := events.AppendCanonicalEvent(ctx, tx, in.AccountID, in.ProviderEventID, received, events.WithOccurredAt(now)); err != nil {
		return nil, fmt.Errorf("crm: append message event: %w", err)
	}
	if res.CreatedCustomer {
		created := events.CustomerCreatedV1{
			CustomerID:  res.Customer.ID.String(),
			AccountID:   in.AccountID.String(),
			DisplayName: res.Customer.DisplayName,
			Phone:       res.Customer.Phone,
			Source:      WorkSourceSMS,
			CreatedAt:   now,
		}
		if _, err := events.AppendCanonicalEvent(ctx, tx, in.AccountID, in.ProviderEventID, created, events.WithOccurredAt(now)); err != nil {
			return nil, fmt.Errorf("crm: append customer event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("crm: commit cascade: %w", err)
	}
	span.SetAttributes(
		attribute.Bool("customer.created", res.CreatedCustomer),
		attribute.Bool("work_record.created", res.CreatedWorkRecord),
		attribute.Bool("conversation.created", res.CreatedConversation),
	)
	return res, nil
}

func (c *Cascade) resolveCustomer(ctx context.Context, q Querier, accountID uuid.UUID, from, normalized string) (Customer, bool, error) {
	existing, err := c.store.FindCustomerByPhone(ctx, q, accountID, normalized)
	if err != nil {
		return Customer{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	customer := Customer{
		AccountID:       accountID,
		DisplayName:     phone.PlaceholderName(from),
		Phone:           phone.Pretty(from),
		PhoneNormalized: normalized,
		Status:          CustomerStatusActive,
		Kind:            CustomerKindResidential,
	}
	id, err := c.store.InsertCustomer(ctx, q, customer)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race to a concurrent delivery from the same number.
			winner, findErr := c.store.FindCustomerByPhone(ctx, q, accountID, normalized)
			if findErr == nil && winner != nil {
				return *winner, false, nil
			}
		}
		return Customer{}, false, err
	}
	customer.ID = id
	return customer, true, nil
}

func (c *Cascade) resolveWorkRecord(ctx context.Context, q Querier, accountID uuid.UUID, customer Customer) (WorkRecord, bool, error) {
	if c.policy == PolicyReuseOpen {
		existing, err := c.store.LatestLiveWorkRecord(ctx, q, accountID, customer.ID)
		if err != nil {
			return WorkRecord{}, false, err
		}
		if existing != nil {
			return *existing, false, nil
		}
	}

	n, err := c.store.NextWorkRecordNumber(ctx, q, accountID)
	if err != nil {
		return WorkRecord{}, false, err
	}
	record := WorkRecord{
		Code:       fmt.Sprintf("J-%d", n),
		AccountID:  accountID,
		CustomerID: customer.ID,
		Status:     WorkStatusOpen,
		Title:      customer.DisplayName,
		Source:     WorkSourceSMS,
	}
	id, err := c.store.InsertWorkRecord(ctx, q, record)
	if err != nil {
		return WorkRecord{}, false, err
	}
	record.ID = id
	return record, true, nil
}

func (c *Cascade) resolveConversation(ctx context.Context, q Querier, accountID, customerID, workRecordID uuid.UUID, now time.Time) (Conversation, bool, error) {
	existing, err := c.store.FindActiveConversation(ctx, q, customerID, workRecordID)
	if err != nil {
		return Conversation{}, false, err
	}
	if existing != nil {
		if err := c.store.TouchConversation(ctx, q, existing.ID, now); err != nil {
			return Conversation{}, false, err
		}
		if now.After(existing.LastMessageAt) {
			existing.LastMessageAt = now
		}
		return *existing, false, nil
	}

	conversation := Conversation{
		AccountID:     accountID,
		CustomerID:    customerID,
		WorkRecordID:  workRecordID,
		Status:        ConversationStatusActive,
		LastMessageAt: now,
	}
	id, err := c.store.InsertConversation(ctx, q, conversation)
	if err != nil {
		if isUniqueViolation(err) {
			winner, findErr := c.store.FindActiveConversation(ctx, q, customerID, workRecordID)
			if findErr == nil && winner != nil {
				if touchErr := c.store.TouchConversation(ctx, q, winner.ID, now); touchErr != nil {
					return Conversation{}, false, touchErr
				}
				return *winner, false, nil
			}
		}
		return Conversation{}, false, err
	}
	conversation.ID = id
	return conversation, true, nil
}
