package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fieldlinehq/fieldline/internal/crm"
	observemetrics "github.com/fieldlinehq/fieldline/internal/observability/metrics"
	"github.com/fieldlinehq/fieldline/internal/telnyx"
	"github.com/fieldlinehq/fieldline/internal/tenancy"
	"github.com/fieldlinehq/fieldline/pkg/logging"
)

var webhookTracer = otel.Tracer("fieldline.internal.http.handlers.webhooks")

const providerTelnyx = "telnyx"

type signatureVerifier interface {
	Verify(timestamp, signature string, payload []byte) error
}

type accountResolver interface {
	ResolveAccount(ctx context.Context, toNumber string) (uuid.UUID, error)
}

type cascadeRunner interface {
	Resolve(ctx context.Context, in crm.Inbound) (*crm.Resolution, error)
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WebhookHandler receives provider message webhooks and drives them through
// signature verification, normalization, tenant routing, and the resolution
// cascade. Every response the provider can retry on is deliberate: 2xx stops
// redelivery, everything else invites it.
type WebhookHandler struct {
	verifier  signatureVerifier
	resolver  accountResolver
	cascade   cascadeRunner
	processed processedTracker
	logger    *logging.Logger
	metrics   *observemetrics.WebhookMetrics
}

type WebhookConfig struct {
	Verifier  signatureVerifier
	Resolver  accountResolver
	Cascade   cascadeRunner
	Processed processedTracker
	Logger    *logging.Logger
	Metrics   *observemetrics.WebhookMetrics
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Verifier == nil || cfg.Resolver == nil || cfg.Cascade == nil {
		panic("handlers: verifier, resolver, and cascade are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		verifier:  cfg.Verifier,
		resolver:  cfg.Resolver,
		cascade:   cfg.Cascade,
		processed: cfg.Processed,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

type webhookResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details *webhookDetails `json:"details,omitempty"`
}

type webhookDetails struct {
	AccountID           string `json:"account_id"`
	CustomerID          string `json:"customer_id"`
	WorkRecordID        string `json:"work_record_id"`
	WorkRecordCode      string `json:"work_record_code"`
	ConversationID      string `json:"conversation_id"`
	MessageID           string `json:"message_id,omitempty"`
	CreatedCustomer     bool   `json:"created_customer"`
	CreatedWorkRecord   bool   `json:"created_work_record"`
	CreatedConversation bool   `json:"created_conversation"`
	Duplicate           bool   `json:"duplicate"`
}

// HandleMessages processes provider message webhooks.
func (h *WebhookHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhooks.messages")
	defer span.End()
	start := time.Now()

	// The raw body is read exactly once; the signature covers these bytes.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.verifier.Verify(r.Header.Get(telnyx.TimestampHeader), r.Header.Get(telnyx.SignatureHeader), body); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		h.observe("unknown", "unauthorized", start)
		h.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	evt, err := telnyx.Normalize(body)
	if err != nil {
		h.observe("unknown", "rejected", start)
		h.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if evt == nil {
		// Valid JSON in a shape this pipeline does not understand. Acknowledge
		// so the provider stops retrying something we will never act on.
		h.observe("unknown", "skipped", start)
		h.writeOK(w, "event skipped: unrecognized payload shape", nil)
		return
	}
	span.SetAttributes(attribute.String("webhook.event_type", evt.EventType))
	if !evt.ActionableInbound() {
		h.logger.Info("non-actionable event acknowledged",
			"event_type", evt.EventType,
			"direction", evt.Direction,
			"event_id", evt.EventID,
		)
		h.observe(evt.EventType, "skipped", start)
		h.writeOK(w, "event skipped: not an actionable inbound message", nil)
		return
	}

	if h.processed != nil && evt.EventID != "" {
		seen, err := h.processed.AlreadyProcessed(ctx, providerTelnyx, evt.EventID)
		if err != nil {
			h.logger.Error("processed lookup failed", "error", err, "event_id", evt.EventID)
			h.observe(evt.EventType, "error", start)
			h.writeError(w, http.StatusInternalServerError, "processing error")
			return
		}
		if seen {
			h.observe(evt.EventType, "duplicate", start)
			h.writeOK(w, "event already processed", nil)
			return
		}
	}

	accountID, err := h.resolver.ResolveAccount(ctx, evt.To)
	if err != nil {
		if errors.Is(err, tenancy.ErrAccountNotFound) {
			h.observe(evt.EventType, "unrouted", start)
			h.writeError(w, http.StatusNotFound, "no account owns the destination number")
			return
		}
		h.logger.Error("account resolution failed", "error", err, "to", evt.To)
		h.observe(evt.EventType, "error", start)
		h.writeError(w, http.StatusInternalServerError, "processing error")
		return
	}
	ctx = tenancy.WithAccountID(ctx, accountID)

	res, err := h.cascade.Resolve(ctx, crm.Inbound{
		AccountID:         accountID,
		From:              evt.From,
		To:                evt.To,
		Text:              evt.Text,
		Provider:          providerTelnyx,
		ProviderMessageID: evt.MessageID,
		ProviderEventID:   evt.EventID,
		OccurredAt:        evt.OccurredAt,
	})
	if err != nil {
		h.logger.Error("inbound cascade failed",
			"error", err,
			"account_id", accountID,
			"event_id", evt.EventID,
		)
		h.observe(evt.EventType, "error", start)
		h.writeError(w, http.StatusInternalServerError, "processing error")
		return
	}

	if h.processed != nil && evt.EventID != "" {
		if _, err := h.processed.MarkProcessed(ctx, providerTelnyx, evt.EventID); err != nil {
			// The message row is committed; a redelivery will hit the
			// duplicate path instead.
			h.logger.Error("failed to mark event processed", "error", err, "event_id", evt.EventID)
		}
	}

	h.recordCreated(res)
	details := &webhookDetails{
		AccountID:           accountID.String(),
		CustomerID:          res.Customer.ID.String(),
		WorkRecordID:        res.WorkRecord.ID.String(),
		WorkRecordCode:      res.WorkRecord.Code,
		ConversationID:      res.Conversation.ID.String(),
		CreatedCustomer:     res.CreatedCustomer,
		CreatedWorkRecord:   res.CreatedWorkRecord,
		CreatedConversation: res.CreatedConversation,
		Duplicate:           res.Duplicate,
	}
	if res.Duplicate {
		h.observe(evt.EventType, "duplicate", start)
		h.writeOK(w, "duplicate message ignored", details)
		return
	}
	details.MessageID = res.Message.ID.String()
	h.observe(evt.EventType, "processed", start)
	h.writeOK(w, "message processed", details)
}

func (h *WebhookHandler) recordCreated(res *crm.Resolution) {
	if res.CreatedCustomer {
		h.metrics.ObserveEntityCreated("customer")
	}
	if res.CreatedWorkRecord {
		h.metrics.ObserveEntityCreated("work_record")
	}
	if res.CreatedConversation {
		h.metrics.ObserveEntityCreated("conversation")
	}
}

func (h *WebhookHandler) observe(eventType, outcome string, start time.Time) {
	h.metrics.ObserveInbound(eventType, outcome)
	h.metrics.ObserveLatency(eventType, time.Since(start).Seconds())
}

func (h *WebhookHandler) writeOK(w http.ResponseWriter, message string, details *webhookDetails) {
	writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: message, Details: details})
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, webhookResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
