package store

import (
	"context"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
)

type RuleStore interface {
	UpsertRule(ctx context.Context, rule models.Rule) (*models.Rule, error)
	GetRuleByID(ctx context.Context, id string) (*models.Rule, error)
	ListEnabledRulesByAgentID(ctx context.Context, agentID string) ([]models.Rule, error)
}

type ContactStore interface {
	GetContact(ctx context.Context, contactID string) (*models.Contact, error)
	BindContactAgent(ctx context.Context, contactID, agentID string) error
	TouchContactInbound(ctx context.Context, contactID string, at time.Time) error
}

type TurnStore interface {
	AppendTurn(ctx context.Context, turn models.ConversationTurn) (*models.ConversationTurn, error)
	ListTurnsByContactID(ctx context.Context, contactID string, limit, offset int) ([]models.ConversationTurn, error)
}

type InboundStore interface {
	ClaimInboundMessage(ctx context.Context, messageID, contactID, text string) (bool, error)
}

type OutboundStore interface {
	ClaimOutboundSend(ctx context.Context, idempotencyKey, contactID, body string, templateName *string) (bool, error)
	GetOutboundSend(ctx context.Context, idempotencyKey string) (*models.OutboundSend, error)
	MarkOutboundSent(ctx context.Context, idempotencyKey, providerMessageID string) error
	MarkOutboundFailed(ctx context.Context, idempotencyKey, sendError string) error
	ReclaimStaleSending(ctx context.Context, before time.Time) (int, error)
}

type ScheduleStore interface {
	UpsertSchedule(ctx context.Context, schedule models.Schedule) (*models.Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]models.Schedule, error)
	AdvanceSchedule(ctx context.Context, id string, nextRunAt time.Time) error
}
