package inbound

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
	"github.com/sendloop-systems/sendloop/internal/outbound"
	"github.com/sendloop-systems/sendloop/internal/queue"
)

// --- Mock stores ---

type mockContactStore struct {
	contacts map[string]*models.Contact
	touched  map[string]time.Time
}

func newMockContactStore() *mockContactStore {
	return &mockContactStore{
		contacts: make(map[string]*models.Contact),
		touched:  make(map[string]time.Time),
	}
}

func (m *mockContactStore) GetContact(_ context.Context, contactID string) (*models.Contact, error) {
	contact, ok := m.contacts[contactID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return contact, nil
}

func (m *mockContactStore) BindContactAgent(_ context.Context, contactID, agentID string) error {
	m.contacts[contactID] = &models.Contact{ContactID: contactID, AgentID: agentID}
	return nil
}

func (m *mockContactStore) TouchContactInbound(_ context.Context, contactID string, at time.Time) error {
	m.touched[contactID] = at
	if contact, ok := m.contacts[contactID]; ok {
		contact.LastInboundAt = &at
	} else {
		m.contacts[contactID] = &models.Contact{ContactID: contactID, LastInboundAt: &at}
	}
	return nil
}

type mockRuleStore struct {
	byAgent map[string][]models.Rule
}

func (m *mockRuleStore) UpsertRule(_ context.Context, rule models.Rule) (*models.Rule, error) {
	m.byAgent[rule.AgentID] = append(m.byAgent[rule.AgentID], rule)
	return &rule, nil
}

func (m *mockRuleStore) GetRuleByID(_ context.Context, _ string) (*models.Rule, error) {
	return nil, sql.ErrNoRows
}

func (m *mockRuleStore) ListEnabledRulesByAgentID(_ context.Context, agentID string) ([]models.Rule, error) {
	return m.byAgent[agentID], nil
}

type mockTurnStore struct {
	turns []models.ConversationTurn
}

func (m *mockTurnStore) AppendTurn(_ context.Context, turn models.ConversationTurn) (*models.ConversationTurn, error) {
	turn.ID = int64(len(m.turns) + 1)
	m.turns = append(m.turns, turn)
	return &turn, nil
}

func (m *mockTurnStore) ListTurnsByContactID(_ context.Context, _ string, _, _ int) ([]models.ConversationTurn, error) {
	return m.turns, nil
}

// --- Helpers ---

func newTestService(contacts *mockContactStore, ruleStore *mockRuleStore, turns *mockTurnStore, jobs queue.Queue) *Service {
	return NewService(contacts, ruleStore, turns, jobs, Options{
		RequireInvokePrefix: true,
		InvokePrefixes:      []string{"michael:", "@michael", "/ask"},
		DefaultAgentID:      "default-agent",
	})
}

func dequeueCommand(t *testing.T, jobs *queue.MemoryQueue) outbound.SendCommand {
	t.Helper()
	job, err := jobs.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil {
		t.Fatal("expected an enqueued job")
	}
	if job.Type != queue.JobOutboundSendText {
		t.Fatalf("unexpected job type %q", job.Type)
	}
	var cmd outbound.SendCommand
	if err := json.Unmarshal(job.Payload, &cmd); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	return cmd
}

// --- Tests ---

func TestProcessMatchedRuleEnqueuesReply(t *testing.T) {
	contacts := newMockContactStore()
	contacts.contacts["15550000001"] = &models.Contact{ContactID: "15550000001", AgentID: "agent-1"}
	ruleStore := &mockRuleStore{byAgent: map[string][]models.Rule{
		"agent-1": {{
			ID:        "rule-1",
			AgentID:   "agent-1",
			Type:      models.RuleTypeKeyword,
			Enabled:   true,
			Priority:  1,
			Keywords:  []string{"weather"},
			ReplyText: "Sunny today",
		}},
	}}
	turns := &mockTurnStore{}
	jobs := queue.NewMemoryQueue()
	svc := newTestService(contacts, ruleStore, turns, jobs)

	replied, err := svc.Process(context.Background(), models.InboundMessage{
		MessageID: "wamid.1",
		ContactID: "15550000001",
		Text:      "michael: weather please",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !replied {
		t.Fatal("expected a reply to be enqueued")
	}

	if len(turns.turns) != 1 {
		t.Fatalf("expected one conversation turn, got %d", len(turns.turns))
	}
	turn := turns.turns[0]
	if turn.OutboundText != "Sunny today" {
		t.Fatalf("unexpected outbound text %q", turn.OutboundText)
	}
	if turn.MatchedRuleID == nil || *turn.MatchedRuleID != "rule-1" {
		t.Fatalf("expected matched rule id rule-1, got %v", turn.MatchedRuleID)
	}

	cmd := dequeueCommand(t, jobs)
	if cmd.IdempotencyKey != "reply:wamid.1" {
		t.Fatalf("unexpected idempotency key %q", cmd.IdempotencyKey)
	}
	if cmd.Body != "Sunny today" {
		t.Fatalf("unexpected body %q", cmd.Body)
	}

	if _, ok := contacts.touched["15550000001"]; !ok {
		t.Fatal("expected the contact's last-inbound timestamp to be refreshed")
	}
}

func TestProcessNotInvokedSkipsReply(t *testing.T) {
	contacts := newMockContactStore()
	ruleStore := &mockRuleStore{byAgent: map[string][]models.Rule{}}
	turns := &mockTurnStore{}
	jobs := queue.NewMemoryQueue()
	svc := newTestService(contacts, ruleStore, turns, jobs)

	replied, err := svc.Process(context.Background(), models.InboundMessage{
		MessageID: "wamid.2",
		ContactID: "15550000002",
		Text:      "just chatting",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if replied {
		t.Fatal("expected no reply without an invocation prefix")
	}
	if len(turns.turns) != 0 {
		t.Fatalf("expected no turns, got %d", len(turns.turns))
	}
	if jobs.Len() != 0 {
		t.Fatalf("expected no jobs, got %d", jobs.Len())
	}
	// The contact touch happens before gating.
	if _, ok := contacts.touched["15550000002"]; !ok {
		t.Fatal("expected the contact touch even when gating rejects")
	}
}

func TestProcessUnboundContactFallsBackToDefaultAgent(t *testing.T) {
	contacts := newMockContactStore()
	ruleStore := &mockRuleStore{byAgent: map[string][]models.Rule{
		"default-agent": {{
			ID:        "default-rule",
			AgentID:   "default-agent",
			Type:      models.RuleTypeKeyword,
			Enabled:   true,
			Keywords:  []string{"weather"},
			ReplyText: "Default weather",
		}},
	}}
	turns := &mockTurnStore{}
	jobs := queue.NewMemoryQueue()
	svc := newTestService(contacts, ruleStore, turns, jobs)

	replied, err := svc.Process(context.Background(), models.InboundMessage{
		MessageID: "wamid.3",
		ContactID: "15550000003",
		Text:      "/ask weather",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !replied {
		t.Fatal("expected a reply via the default agent's rules")
	}
	cmd := dequeueCommand(t, jobs)
	if cmd.Body != "Default weather" {
		t.Fatalf("unexpected body %q", cmd.Body)
	}
}

func TestProcessNoMatchUsesFallbackReply(t *testing.T) {
	contacts := newMockContactStore()
	ruleStore := &mockRuleStore{byAgent: map[string][]models.Rule{}}
	turns := &mockTurnStore{}
	jobs := queue.NewMemoryQueue()
	svc := newTestService(contacts, ruleStore, turns, jobs)

	replied, err := svc.Process(context.Background(), models.InboundMessage{
		MessageID: "wamid.4",
		ContactID: "15550000004",
		Text:      "@michael help me",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !replied {
		t.Fatal("expected a fallback reply")
	}
	cmd := dequeueCommand(t, jobs)
	want := "I heard: @michael help me. I can help with weather or reminders."
	if cmd.Body != want {
		t.Fatalf("unexpected fallback body %q", cmd.Body)
	}
	if turns.turns[0].MatchedRuleID != nil {
		t.Fatalf("expected nil matched rule id, got %v", turns.turns[0].MatchedRuleID)
	}
}

func TestProcessEmptyReplyTextUsesFallback(t *testing.T) {
	contacts := newMockContactStore()
	contacts.contacts["15550000005"] = &models.Contact{ContactID: "15550000005", AgentID: "agent-1"}
	ruleStore := &mockRuleStore{byAgent: map[string][]models.Rule{
		"agent-1": {{
			ID:       "rule-empty",
			AgentID:  "agent-1",
			Type:     models.RuleTypeKeyword,
			Enabled:  true,
			Keywords: []string{"ping"},
		}},
	}}
	turns := &mockTurnStore{}
	jobs := queue.NewMemoryQueue()
	svc := newTestService(contacts, ruleStore, turns, jobs)

	replied, err := svc.Process(context.Background(), models.InboundMessage{
		MessageID: "wamid.5",
		ContactID: "15550000005",
		Text:      "michael: ping",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !replied {
		t.Fatal("expected a reply")
	}
	cmd := dequeueCommand(t, jobs)
	if cmd.Body == "" {
		t.Fatal("expected fallback body for a rule with empty reply text")
	}
	if turns.turns[0].MatchedRuleID == nil || *turns.turns[0].MatchedRuleID != "rule-empty" {
		t.Fatal("expected the matched rule to still be recorded")
	}
}
