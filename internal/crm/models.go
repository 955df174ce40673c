package crm

import (
	"time"

	"github.com/google/uuid"
)

// Customer lifecycle and classification values.
const (
	CustomerStatusActive = "active"

	CustomerKindResidential = "residential"
	CustomerKindCommercial  = "commercial"
)

// Work record statuses. Records in StatusOpen or StatusScheduled are
// considered live and are reused for new inbound messages.
const (
	WorkStatusOpen       = "open"
	WorkStatusScheduled  = "scheduled"
	WorkStatusInProgress = "in_progress"
	WorkStatusCompleted  = "completed"
	WorkStatusCancelled  = "cancelled"
	WorkStatusClosed     = "closed"
)

const (
	ConversationStatusActive = "active"
	ConversationStatusClosed = "closed"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	DeliveryStatusDelivered = "delivered"

	WorkSourceSMS = "SMS"
)

// Customer is a person or business reached through an account's numbers.
// Created lazily on first inbound contact; PhoneNormalized is the canonical
// digit string used for matching, Phone keeps a display form.
type Customer struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	DisplayName     string
	Phone           string
	PhoneNormalized string
	Status          string
	Kind            string
	AddressLine1    string
	AddressLine2    string
	City            string
	Region          string
	PostalCode      string
	CreatedAt       time.Time
}

// WorkRecord is the unit of engagement ("job") conversations attach to.
// Code is the sequential human-readable identifier (J-<n>).
type WorkRecord struct {
	ID         uuid.UUID
	Code       string
	AccountID  uuid.UUID
	CustomerID uuid.UUID
	Status     string
	Title      string
	Source     string
	CreatedAt  time.Time
}

// Conversation groups messages for a (customer, work record) pair. At most
// one active conversation exists per pair at a time.
type Conversation struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	CustomerID    uuid.UUID
	WorkRecordID  uuid.UUID
	Status        string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// Message is immutable once written.
type Message struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	ConversationID    uuid.UUID
	Body              string
	Direction         string
	Sender            string
	Recipient         string
	DeliveryStatus    string
	ProviderMessageID string
	CreatedAt         time.Time
}
