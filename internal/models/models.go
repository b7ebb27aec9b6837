package models

import "time"

// RuleType describes how a rule's pattern is applied to inbound text.
type RuleType string

const (
	RuleTypeKeyword   RuleType = "keyword"
	RuleTypePrefix    RuleType = "prefix"
	RuleTypeScheduled RuleType = "scheduled"
)

// RuleAction describes what a matched rule does.
type RuleAction string

const (
	RuleActionReplyText RuleAction = "reply_text"
)

// Rule is an agent-owned matching rule. Within one agent's rule set,
// evaluation order is ascending priority; ties keep storage order.
type Rule struct {
	ID        string
	AgentID   string
	Type      RuleType
	Enabled   bool
	Priority  int
	Keywords  []string
	Prefix    string
	Action    RuleAction
	ReplyText string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contact is an external chat participant, keyed by the provider's opaque id.
type Contact struct {
	ContactID     string
	AgentID       string
	OptedOut      bool
	LastInboundAt *time.Time
}

// InboundMessage is the normalized inbound event handed over by the transport
// layer. The transport rejects events missing an id or text before this type
// is ever constructed.
type InboundMessage struct {
	MessageID string `json:"message_id"`
	ContactID string `json:"contact_id"`
	Text      string `json:"text"`
	IsVoice   bool   `json:"is_voice"`
}

// ConversationTurn is an append-only record of one processed inbound message
// and the reply chosen for it.
type ConversationTurn struct {
	ID            int64
	ContactID     string
	InboundText   string
	OutboundText  string
	MatchedRuleID *string
	CreatedAt     time.Time
}

// SendStatus is the lifecycle state of an outbound send record. Transitions
// are monotonic: sending -> sent or sending -> failed, never back.
type SendStatus string

const (
	SendStatusSending SendStatus = "sending"
	SendStatusSent    SendStatus = "sent"
	SendStatusFailed  SendStatus = "failed"
)

// OutboundSend is the idempotency record for one logical outbound send.
// At most one row ever exists per idempotency key.
type OutboundSend struct {
	IdempotencyKey    string
	ContactID         string
	Body              string
	TemplateName      *string
	Status            SendStatus
	Attempts          int
	ProviderMessageID *string
	LastError         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Schedule is a recurring broadcast bound to one contact and agent. NextRunAt
// advances by IntervalMinutes each time the schedule fires.
type Schedule struct {
	ID              string
	ContactID       string
	AgentID         string
	MessageText     string
	TemplateName    *string
	IntervalMinutes int
	NextRunAt       time.Time
	Enabled         bool
}
