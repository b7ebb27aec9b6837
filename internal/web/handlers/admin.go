package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sendloop-systems/sendloop/internal/models"
	"github.com/sendloop-systems/sendloop/internal/store"
)

// AdminHandler serves rule, binding and schedule administration. All routes
// sit behind the admin-key middleware.
type AdminHandler struct {
	rules     store.RuleStore
	contacts  store.ContactStore
	schedules store.ScheduleStore
}

func NewAdminHandler(rules store.RuleStore, contacts store.ContactStore, schedules store.ScheduleStore) *AdminHandler {
	return &AdminHandler{rules: rules, contacts: contacts, schedules: schedules}
}

type upsertRuleRequest struct {
	ID        string   `json:"id"`
	AgentID   string   `json:"agent_id"`
	RuleType  string   `json:"rule_type"`
	Enabled   *bool    `json:"enabled"`
	Priority  *int     `json:"priority"`
	Keywords  []string `json:"keywords"`
	Prefix    string   `json:"prefix"`
	Action    string   `json:"action"`
	ReplyText string   `json:"reply_text"`
}

func (h *AdminHandler) HandleUpsertRule(w http.ResponseWriter, r *http.Request) {
	var req upsertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	if req.AgentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "agent_id is required"})
		return
	}
	ruleType := models.RuleType(req.RuleType)
	switch ruleType {
	case models.RuleTypeKeyword:
		if len(req.Keywords) == 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "keyword rules need at least one keyword"})
			return
		}
	case models.RuleTypePrefix:
		if req.Prefix == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prefix rules need a prefix"})
			return
		}
	case models.RuleTypeScheduled:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rule_type must be keyword, prefix or scheduled"})
		return
	}

	rule := models.Rule{
		ID:        req.ID,
		AgentID:   req.AgentID,
		Type:      ruleType,
		Enabled:   true,
		Priority:  100,
		Keywords:  req.Keywords,
		Prefix:    req.Prefix,
		Action:    models.RuleActionReplyText,
		ReplyText: req.ReplyText,
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Action != "" {
		rule.Action = models.RuleAction(req.Action)
	}

	saved, err := h.rules.UpsertRule(r.Context(), rule)
	if err != nil {
		slog.Error("failed to upsert rule", "rule_id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "rule_id": saved.ID})
}

func (h *AdminHandler) HandleBindContact(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	agentID := chi.URLParam(r, "agentID")
	if contactID == "" || agentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "contact id and agent id are required"})
		return
	}

	if err := h.contacts.BindContactAgent(r.Context(), contactID, agentID); err != nil {
		slog.Error("failed to bind contact", "contact_id", contactID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"contact_id": contactID,
		"agent_id":   agentID,
	})
}

type upsertScheduleRequest struct {
	ID              string     `json:"id"`
	ContactID       string     `json:"contact_id"`
	AgentID         string     `json:"agent_id"`
	MessageText     string     `json:"message_text"`
	TemplateName    *string    `json:"template_name"`
	IntervalMinutes int        `json:"interval_minutes"`
	NextRunAt       *time.Time `json:"next_run_at"`
	Enabled         *bool      `json:"enabled"`
}

func (h *AdminHandler) HandleUpsertSchedule(w http.ResponseWriter, r *http.Request) {
	var req upsertScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	if req.ContactID == "" || req.AgentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "contact_id and agent_id are required"})
		return
	}
	if req.IntervalMinutes <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "interval_minutes must be positive"})
		return
	}
	if req.MessageText == "" && (req.TemplateName == nil || *req.TemplateName == "") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message_text or template_name is required"})
		return
	}

	schedule := models.Schedule{
		ID:              req.ID,
		ContactID:       req.ContactID,
		AgentID:         req.AgentID,
		MessageText:     req.MessageText,
		TemplateName:    req.TemplateName,
		IntervalMinutes: req.IntervalMinutes,
		NextRunAt:       time.Now().UTC(),
		Enabled:         true,
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if req.NextRunAt != nil {
		schedule.NextRunAt = req.NextRunAt.UTC()
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}

	saved, err := h.schedules.UpsertSchedule(r.Context(), schedule)
	if err != nil {
		slog.Error("failed to upsert schedule", "schedule_id", schedule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "schedule_id": saved.ID})
}
