package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newStoreMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewStore(mock)
}

func TestFindCustomerByPhone(t *testing.T) {
	mock, store := newStoreMock(t)
	accountID := uuid.New()
	customerID := uuid.New()

	mock.ExpectQuery("FROM customers").
		WithArgs(accountID, "4165550001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "display_name", "phone", "phone_normalized", "status", "kind", "created_at"}).
			AddRow(customerID, accountID, "Dana Reyes", "(416) 555-0001", "4165550001", CustomerStatusActive, CustomerKindResidential, time.Now()))

	c, err := store.FindCustomerByPhone(context.Background(), nil, accountID, "4165550001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c == nil || c.ID != customerID {
		t.Fatalf("unexpected customer: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindCustomerByPhoneNoMatch(t *testing.T) {
	mock, store := newStoreMock(t)
	accountID := uuid.New()

	mock.ExpectQuery("FROM customers").
		WithArgs(accountID, "4165550001").
		WillReturnError(pgx.ErrNoRows)

	c, err := store.FindCustomerByPhone(context.Background(), nil, accountID, "4165550001")
	if err != nil {
		t.Fatalf("expected nil error on no rows, got %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil customer, got %+v", c)
	}
}

func TestNextWorkRecordNumber(t *testing.T) {
	mock, store := newStoreMock(t)
	accountID := uuid.New()

	mock.ExpectQuery("INSERT INTO work_record_counters").
		WithArgs(accountID).
		WillReturnRows(pgxmock.NewRows([]string{"next_code"}).AddRow(int64(42)))

	n, err := store.NextWorkRecordNumber(context.Background(), nil, accountID)
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertMessageDuplicate(t *testing.T) {
	mock, store := newStoreMock(t)

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "hello", DirectionInbound,
			"+14165550001", "+14165559999", DeliveryStatusDelivered, "msg-1").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "messages_provider_message_id_key"})

	_, err := store.InsertMessage(context.Background(), nil, Message{
		AccountID:         uuid.New(),
		ConversationID:    uuid.New(),
		Body:              "hello",
		Direction:         DirectionInbound,
		Sender:            "+14165550001",
		Recipient:         "+14165559999",
		DeliveryStatus:    DeliveryStatusDelivered,
		ProviderMessageID: "msg-1",
	})
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}
}

func TestTouchConversation(t *testing.T) {
	mock, store := newStoreMock(t)
	conversationID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE conversations").
		WithArgs(conversationID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.TouchConversation(context.Background(), nil, conversationID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
