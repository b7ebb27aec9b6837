package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sendloop-systems/sendloop/internal/models"
	"github.com/sendloop-systems/sendloop/internal/queue"
	"github.com/sendloop-systems/sendloop/internal/store"
)

const defaultWebhookMaxBodyBytes int64 = 1024 * 1024

// WebhookHandler receives provider webhook deliveries: the GET verification
// handshake and POSTed message envelopes.
type WebhookHandler struct {
	inbound      store.InboundStore
	jobs         queue.Queue
	verifyToken  string
	maxBodyBytes int64
}

func NewWebhookHandler(inbound store.InboundStore, jobs queue.Queue, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		inbound:      inbound,
		jobs:         jobs,
		verifyToken:  verifyToken,
		maxBodyBytes: defaultWebhookMaxBodyBytes,
	}
}

// HandleVerify answers the provider's subscription handshake by echoing the
// challenge when the verify token matches.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid verification token"})
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(q.Get("hub.challenge")))
}

// webhookEnvelope mirrors the provider's wire format. Only the fields the
// pipeline needs are decoded.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WAID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []providerMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type providerMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

type webhookResponse struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
}

// HandleReceive extracts messages from the envelope, claims each against the
// inbound dedup store and enqueues processing jobs for the fresh ones.
// Duplicate deliveries (provider retries) are acknowledged without enqueueing.
func (h *WebhookHandler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	processed := 0
	for _, msg := range extractMessages(envelope) {
		claimed, err := h.inbound.ClaimInboundMessage(r.Context(), msg.MessageID, msg.ContactID, msg.Text)
		if err != nil {
			slog.Error("failed to claim inbound message", "message_id", msg.MessageID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		if !claimed {
			continue
		}
		if err := h.jobs.Enqueue(r.Context(), queue.JobInboundProcessMessage, msg); err != nil {
			slog.Error("failed to enqueue inbound job", "message_id", msg.MessageID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		processed++
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: "accepted", Processed: processed})
}

// extractMessages flattens the provider envelope into normalized inbound
// events, dropping anything without a message id or usable text.
func extractMessages(envelope webhookEnvelope) []models.InboundMessage {
	var messages []models.InboundMessage
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			defaultContactID := ""
			if len(change.Value.Contacts) > 0 {
				defaultContactID = change.Value.Contacts[0].WAID
			}

			for _, msg := range change.Value.Messages {
				contactID := defaultContactID
				if contactID == "" {
					contactID = msg.From
				}
				if contactID == "" || msg.ID == "" {
					continue
				}

				text := ""
				isVoice := false
				switch msg.Type {
				case "text":
					text = msg.Text.Body
				case "audio":
					text = "voice note"
					isVoice = true
				}
				if text == "" {
					continue
				}

				messages = append(messages, models.InboundMessage{
					MessageID: msg.ID,
					ContactID: contactID,
					Text:      text,
					IsVoice:   isVoice,
				})
			}
		}
	}
	return messages
}
