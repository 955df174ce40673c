package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

type recordingHandler struct {
	entries []OutboxEntry
	fail    map[uuid.UUID]error
}

func (h *recordingHandler) Handle(_ context.Context, entry OutboxEntry) error {
	if err, ok := h.fail[entry.ID]; ok {
		return err
	}
	h.entries = append(h.entries, entry)
	return nil
}

func TestFetchPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewOutboxStore(mock)

	id := uuid.New()
	created := time.Now().UTC()
	mock.ExpectQuery("SELECT id, aggregate, event_type, payload, created_at").
		WithArgs(int32(10)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "aggregate", "event_type", "payload", "created_at"}).
			AddRow(id, "account:a-1", "crm.message.received.v1", []byte(`{"message_id":"m-1"}`), created))

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != id || entries[0].Type != "crm.message.received.v1" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	var body map[string]string
	if err := json.Unmarshal(entries[0].Payload, &body); err != nil || body["message_id"] != "m-1" {
		t.Fatalf("unexpected payload: %s (%v)", entries[0].Payload, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkDelivered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewOutboxStore(mock)

	id := uuid.New()
	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("expected delivered, got %v err=%v", ok, err)
	}

	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = store.MarkDelivered(context.Background(), id)
	if err != nil || ok {
		t.Fatalf("expected already delivered, got %v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDelivererDrain(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewOutboxStore(mock)

	good := uuid.New()
	bad := uuid.New()
	created := time.Now().UTC()
	mock.ExpectQuery("SELECT id, aggregate, event_type, payload, created_at").
		WithArgs(int32(25)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "aggregate", "event_type", "payload", "created_at"}).
			AddRow(bad, "account:a-1", "crm.customer.created.v1", []byte(`{}`), created).
			AddRow(good, "account:a-1", "crm.message.received.v1", []byte(`{}`), created))
	// Only the successful entry gets marked delivered; the failed one stays pending.
	mock.ExpectExec("UPDATE outbox").
		WithArgs(good).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	handler := &recordingHandler{fail: map[uuid.UUID]error{bad: errors.New("queue down")}}
	d := NewDeliverer(store, handler, nil)
	d.drain(context.Background())

	if len(handler.entries) != 1 || handler.entries[0].ID != good {
		t.Fatalf("unexpected handled entries: %+v", handler.entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
