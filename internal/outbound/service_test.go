package outbound

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
)

// --- Mocks ---

type mockOutboundStore struct {
	sends map[string]*models.OutboundSend
}

func newMockOutboundStore() *mockOutboundStore {
	return &mockOutboundStore{sends: make(map[string]*models.OutboundSend)}
}

func (m *mockOutboundStore) ClaimOutboundSend(_ context.Context, key, contactID, body string, templateName *string) (bool, error) {
	if _, exists := m.sends[key]; exists {
		return false, nil
	}
	m.sends[key] = &models.OutboundSend{
		IdempotencyKey: key,
		ContactID:      contactID,
		Body:           body,
		TemplateName:   templateName,
		Status:         models.SendStatusSending,
		Attempts:       1,
	}
	return true, nil
}

func (m *mockOutboundStore) GetOutboundSend(_ context.Context, key string) (*models.OutboundSend, error) {
	send, ok := m.sends[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return send, nil
}

func (m *mockOutboundStore) MarkOutboundSent(_ context.Context, key, providerMessageID string) error {
	send, ok := m.sends[key]
	if !ok || send.Status != models.SendStatusSending {
		return nil
	}
	send.Status = models.SendStatusSent
	if providerMessageID != "" {
		send.ProviderMessageID = &providerMessageID
	}
	send.LastError = nil
	return nil
}

func (m *mockOutboundStore) MarkOutboundFailed(_ context.Context, key, sendError string) error {
	send, ok := m.sends[key]
	if !ok || send.Status != models.SendStatusSending {
		return nil
	}
	send.Status = models.SendStatusFailed
	send.LastError = &sendError
	return nil
}

func (m *mockOutboundStore) ReclaimStaleSending(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

type mockContactStore struct {
	contacts map[string]*models.Contact
}

func (m *mockContactStore) GetContact(_ context.Context, contactID string) (*models.Contact, error) {
	contact, ok := m.contacts[contactID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return contact, nil
}

func (m *mockContactStore) BindContactAgent(_ context.Context, _, _ string) error { return nil }

func (m *mockContactStore) TouchContactInbound(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type fakeProvider struct {
	textCalls     []string
	templateCalls []string
	err           error
}

func (p *fakeProvider) SendText(_ context.Context, contactID, body string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.textCalls = append(p.textCalls, contactID+":"+body)
	return "text-id", nil
}

func (p *fakeProvider) SendTemplate(_ context.Context, contactID, templateName string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.templateCalls = append(p.templateCalls, contactID+":"+templateName)
	return "tpl-id", nil
}

// --- Helpers ---

func contactLastSeen(contactID string, ago time.Duration, now time.Time) *models.Contact {
	at := now.Add(-ago)
	return &models.Contact{ContactID: contactID, LastInboundAt: &at}
}

func newTestService(sends *mockOutboundStore, contacts *mockContactStore, provider *fakeProvider, now time.Time) *Service {
	svc := NewService(sends, contacts, provider, 24)
	svc.now = func() time.Time { return now }
	return svc
}

// --- Tests ---

func TestDispatchFreeformWithinWindow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	sends := newMockOutboundStore()
	contacts := &mockContactStore{contacts: map[string]*models.Contact{
		"X": contactLastSeen("X", 2*time.Hour, now),
	}}
	provider := &fakeProvider{}
	svc := newTestService(sends, contacts, provider, now)

	attempted, err := svc.Dispatch(context.Background(), SendCommand{
		IdempotencyKey: "reply:wamid.1",
		ContactID:      "X",
		Body:           "Hello",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !attempted {
		t.Fatal("expected an attempt")
	}
	if len(provider.textCalls) != 1 || provider.textCalls[0] != "X:Hello" {
		t.Fatalf("expected one free-form send, got %v", provider.textCalls)
	}
	if len(provider.templateCalls) != 0 {
		t.Fatalf("expected no template sends, got %v", provider.templateCalls)
	}

	send := sends.sends["reply:wamid.1"]
	if send.Status != models.SendStatusSent {
		t.Fatalf("expected sent status, got %s", send.Status)
	}
	if send.ProviderMessageID == nil || *send.ProviderMessageID != "text-id" {
		t.Fatalf("expected provider message id, got %v", send.ProviderMessageID)
	}
}

func TestDispatchFallbackTemplateOutsideWindow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	sends := newMockOutboundStore()
	contacts := &mockContactStore{contacts: map[string]*models.Contact{
		"X": contactLastSeen("X", 30*time.Hour, now),
	}}
	provider := &fakeProvider{}
	svc := newTestService(sends, contacts, provider, now)

	attempted, err := svc.Dispatch(context.Background(), SendCommand{
		IdempotencyKey: "reply:wamid.2",
		ContactID:      "X",
		Body:           "Hello",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !attempted {
		t.Fatal("expected an attempt")
	}
	if len(provider.textCalls) != 0 {
		t.Fatalf("expected no free-form sends, got %v", provider.textCalls)
	}
	if len(provider.templateCalls) != 1 || provider.templateCalls[0] != "X:"+FallbackTemplate {
		t.Fatalf("expected one fallback template send, got %v", provider.templateCalls)
	}
}

func TestDispatchUnknownContactUsesTemplate(t *testing.T) {
	now := time.Now().UTC()
	sends := newMockOutboundStore()
	contacts := &mockContactStore{contacts: map[string]*models.Contact{}}
	provider := &fakeProvider{}
	svc := newTestService(sends, contacts, provider, now)

	if _, err := svc.Dispatch(context.Background(), SendCommand{
		IdempotencyKey: "reply:wamid.3",
		ContactID:      "never-seen",
		Body:           "Hi",
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(provider.templateCalls) != 1 {
		t.Fatalf("expected a template send for an unknown contact, got %v", provider.templateCalls)
	}
}

func TestDispatchExplicitTemplateSkipsWindowCheck(t *testing.T) {
	now := time.Now().UTC()
	sends := newMockOutboundStore()
	contacts := &mockContactStore{contacts: map[string]*models.Contact{
		"X": contactLastSeen("X", time.Hour, now),
	}}
	provider := &fakeProvider{}
	svc := newTestService(sends, contacts, provider, now)

	template := "weekly_digest"
	if _, err := svc.Dispatch(context.Background(), SendCommand{
		IdempotencyKey: "schedule:s1:100",
		ContactID:      "X",
		TemplateName:   &template,
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(provider.templateCalls) != 1 || provider.templateCalls[0] != "X:weekly_digest" {
		t.Fatalf("expected the explicit template, got %v", provider.templateCalls)
	}
	if len(provider.textCalls) != 0 {
		t.Fatalf("expected no free-form sends, got %v", provider.textCalls)
	}
}

func TestDispatchDuplicateSuppressed(t *testing.T) {
	now := time.Now().UTC()
	sends := newMockOutboundStore()
	contacts := &mockContactStore{contacts: map[string]*models.Contact{
		"X": contactLastSeen("X", time.Hour, now),
	}}
	provider := &fakeProvider{}
	svc := newTestService(sends, contacts, provider, now)

	cmd := SendCommand{IdempotencyKey: "reply:wamid.4", ContactID: "X", Body: "Hi"}

	first, err := svc.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := svc.Dispatch(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if !first || second {
		t.Fatalf("expected (true, false), got (%v, %v)", first, second)
	}
	if len(provider.textCalls) != 1 {
		t.Fatalf("expected exactly one provider call, got %d", len(provider.textCalls))
	}
}

func TestDispatchProviderFailureMarksFailedAndPropagates(t *testing.T) {
	now := time.Now().UTC()
	sends := newMockOutboundStore()
	contacts := &mockContactStore{contacts: map[string]*models.Contact{
		"X": contactLastSeen("X", time.Hour, now),
	}}
	provider := &fakeProvider{err: errors.New("network down")}
	svc := newTestService(sends, contacts, provider, now)

	attempted, err := svc.Dispatch(context.Background(), SendCommand{
		IdempotencyKey: "reply:wamid.5",
		ContactID:      "X",
		Body:           "Hi",
	})
	if err == nil {
		t.Fatal("expected the provider failure to propagate")
	}
	if !attempted {
		t.Fatal("a failed attempt is still an attempt")
	}

	send := sends.sends["reply:wamid.5"]
	if send.Status != models.SendStatusFailed {
		t.Fatalf("expected failed status, got %s", send.Status)
	}
	if send.LastError == nil || *send.LastError != "network down" {
		t.Fatalf("expected the error recorded, got %v", send.LastError)
	}

	// A blind retry with the same key is suppressed; the failed record stays.
	retried, err := svc.Dispatch(context.Background(), SendCommand{
		IdempotencyKey: "reply:wamid.5",
		ContactID:      "X",
		Body:           "Hi",
	})
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if retried {
		t.Fatal("expected the retry with the same key to be suppressed")
	}
	if sends.sends["reply:wamid.5"].Status != models.SendStatusFailed {
		t.Fatal("expected the failed record to be retained")
	}
}
