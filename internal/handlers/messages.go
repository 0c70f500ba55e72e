package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/messagely/apiserver/types"
)

// SendMessage sends a message from the path user, who must be the caller.
func (h *UserHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.inbox.SendMessage(
		r.Context(),
		identityFromContext(r.Context()),
		chi.URLParam(r, "username"),
		req.ToUsername,
		req.Body,
	)
	if err != nil {
		writeServiceError(w, r, err, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: msg})
}

func (h *UserHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseMessageID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.inbox.GetMessage(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "username"), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch message")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// MarkRead marks a received message read. Repeating it is harmless.
func (h *UserHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseMessageID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.inbox.MarkRead(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "username"), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to mark message read")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

type SendMessageRequest struct {
	ToUsername string `json:"to_username" validate:"required"`
	Body       string `json:"body" validate:"required"`
}

type UserListResponse struct {
	Users []types.UserSummary `json:"users"`
}

type UserResponse struct {
	User types.User `json:"user"`
}

type MessageResponse struct {
	Message types.Message `json:"message"`
}

type MessageListResponse struct {
	Messages []types.Message `json:"messages"`
}

type ArchiveResponse struct {
	Archive types.Archive `json:"archive"`
}
