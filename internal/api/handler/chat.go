package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Rrens/event-chat/internal/api/middleware"
	"github.com/Rrens/event-chat/internal/api/response"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/Rrens/event-chat/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ChatHandler handles conversations, messages, polling and attendee search
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Conversations handles GET /conversations
func (h *ChatHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
		return
	}

	conversations, err := h.chatService.Conversations(r.Context(), userID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, map[string]any{"conversations": conversations})
}

// History handles GET /messages/{partnerID}?before=&limit=
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
		return
	}

	partnerID, err := uuid.Parse(chi.URLParam(r, "partnerID"))
	if err != nil {
		response.BadRequest(w, "Invalid partner id")
		return
	}

	before, err := parseTime(r.URL.Query().Get("before"))
	if err != nil {
		response.BadRequest(w, "Invalid before timestamp")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			response.BadRequest(w, "limit must be a positive number")
			return
		}
	}

	history, err := h.chatService.History(r.Context(), userID, partnerID, before, limit)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, history)
}

// Send handles POST /messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
		return
	}

	var input domain.SendMessageRequest
	if err := decode(w, r, &input); err != nil {
		response.FromError(w, r, err)
		return
	}

	message, err := h.chatService.Send(r.Context(), userID, input)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, map[string]any{"message": message})
}

// Poll handles GET /poll?since=
func (h *ChatHandler) Poll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
		return
	}

	since, err := parseTime(r.URL.Query().Get("since"))
	if err != nil {
		response.BadRequest(w, "Invalid since timestamp")
		return
	}

	result, err := h.chatService.Poll(r.Context(), userID, since)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, result)
}

// Attendees handles GET /attendees?q=
func (h *ChatHandler) Attendees(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, domain.ErrNotAuthenticated.Message)
		return
	}

	attendees, err := h.chatService.SearchAttendees(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.OK(w, map[string]any{"attendees": attendees})
}

// parseTime accepts RFC 3339 with optional fractional seconds. Empty is nil.
func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
