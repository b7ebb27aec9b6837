// Package inbound turns claimed inbound messages into conversation turns and
// outbound reply jobs.
package inbound

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
	"github.com/sendloop-systems/sendloop/internal/outbound"
	"github.com/sendloop-systems/sendloop/internal/queue"
	"github.com/sendloop-systems/sendloop/internal/rules"
	"github.com/sendloop-systems/sendloop/internal/store"
)

type Options struct {
	RequireInvokePrefix bool
	InvokePrefixes      []string
	DefaultAgentID      string
}

type Service struct {
	contacts store.ContactStore
	rules    store.RuleStore
	turns    store.TurnStore
	jobs     queue.Queue
	opts     Options
	now      func() time.Time
}

func NewService(contacts store.ContactStore, ruleStore store.RuleStore, turns store.TurnStore, jobs queue.Queue, opts Options) *Service {
	if opts.DefaultAgentID == "" {
		opts.DefaultAgentID = "default-agent"
	}
	return &Service{
		contacts: contacts,
		rules:    ruleStore,
		turns:    turns,
		jobs:     jobs,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process handles one claimed inbound message: refreshes the contact, applies
// invocation gating, matches the agent's rules, records the conversation turn
// and enqueues the reply job. It returns true when a reply was enqueued.
// Callers must have claimed the message id first; Process itself does not
// deduplicate.
func (s *Service) Process(ctx context.Context, msg models.InboundMessage) (bool, error) {
	if err := s.contacts.TouchContactInbound(ctx, msg.ContactID, s.now()); err != nil {
		return false, fmt.Errorf("touch contact: %w", err)
	}

	if !s.isInvoked(msg.Text) {
		return false, nil
	}

	agentID := s.agentFor(ctx, msg.ContactID)
	ruleSet, err := s.rules.ListEnabledRulesByAgentID(ctx, agentID)
	if err != nil {
		return false, fmt.Errorf("list rules for agent %s: %w", agentID, err)
	}

	matched := rules.Match(msg.Text, ruleSet)
	outboundText := fallbackReply(msg.Text)
	var matchedRuleID *string
	if matched != nil {
		matchedRuleID = &matched.ID
		if matched.ReplyText != "" {
			outboundText = matched.ReplyText
		}
	}

	if _, err := s.turns.AppendTurn(ctx, models.ConversationTurn{
		ContactID:     msg.ContactID,
		InboundText:   msg.Text,
		OutboundText:  outboundText,
		MatchedRuleID: matchedRuleID,
	}); err != nil {
		return false, fmt.Errorf("append conversation turn: %w", err)
	}

	// The reply key is derived from the inbound message id, so a re-delivered
	// inbound event cannot mint a second reply even if it got this far.
	cmd := outbound.SendCommand{
		IdempotencyKey: ReplyKey(msg.MessageID),
		ContactID:      msg.ContactID,
		Body:           outboundText,
	}
	if err := s.jobs.Enqueue(ctx, queue.JobOutboundSendText, cmd); err != nil {
		return false, fmt.Errorf("enqueue outbound job: %w", err)
	}
	return true, nil
}

// ReplyKey is the idempotency key for the reply to the given inbound message.
func ReplyKey(messageID string) string {
	return "reply:" + messageID
}

func (s *Service) isInvoked(text string) bool {
	if !s.opts.RequireInvokePrefix {
		return true
	}
	candidate := rules.Normalize(text)
	for _, prefix := range s.opts.InvokePrefixes {
		if strings.HasPrefix(candidate, rules.Normalize(prefix)) {
			return true
		}
	}
	return false
}

func (s *Service) agentFor(ctx context.Context, contactID string) string {
	contact, err := s.contacts.GetContact(ctx, contactID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("failed to load contact binding", "contact_id", contactID, "error", err)
		}
		return s.opts.DefaultAgentID
	}
	if contact.AgentID == "" {
		return s.opts.DefaultAgentID
	}
	return contact.AgentID
}

func fallbackReply(text string) string {
	return fmt.Sprintf("I heard: %s. I can help with weather or reminders.", text)
}
