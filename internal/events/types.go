package events

import "time"

// MessageReceivedV1 announces an inbound SMS that completed the resolution
// cascade. Message bodies stay out of the event; consumers that need the
// text read it from the message row.
type MessageReceivedV1 struct {
	MessageID         string    `json:"message_id"`
	AccountID         string    `json:"account_id"`
	CustomerID        string    `json:"customer_id"`
	WorkRecordID      string    `json:"work_record_id"`
	ConversationID    string    `json:"conversation_id"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	BodyLength        int       `json:"body_length"`
	Provider          string    `json:"provider,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

func (MessageReceivedV1) EventType() string {
	return "crm.message.received.v1"
}

// CustomerCreatedV1 announces a customer bootstrapped from first contact.
type CustomerCreatedV1 struct {
	CustomerID  string    `json:"customer_id"`
	AccountID   string    `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

func (CustomerCreatedV1) EventType() string {
	return "crm.customer.created.v1"
}
