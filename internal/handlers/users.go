package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/messagely/apiserver/internal/services"
)

// UserHandler serves the user directory and each user's mailbox.
type UserHandler struct {
	inbox *services.Inbox
}

func NewUserHandler(inbox *services.Inbox) *UserHandler {
	return &UserHandler{inbox: inbox}
}

// UserRouter registers directory and mailbox routes. Every route requires
// authentication.
func UserRouter(r chi.Router, inbox *services.Inbox, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(inbox)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}
	r.Get("/", handler.ListUsers)
	r.Route("/{username}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Get("/from", handler.SentBy)
		r.Get("/to", handler.ReceivedBy)
		r.Post("/messages", handler.SendMessage)
		r.Get("/messages/{messageID}", handler.GetMessage)
		r.Post("/messages/{messageID}/read", handler.MarkRead)
		r.Post("/archive", handler.ExportThreads)
		r.Get("/archive/{archiveID}", handler.GetArchive)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.inbox.ListUsers(r.Context(), identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: users})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.inbox.GetUser(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

func (h *UserHandler) SentBy(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.inbox.SentBy(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, MessageListResponse{Messages: msgs})
}

func (h *UserHandler) ReceivedBy(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.inbox.ReceivedBy(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, MessageListResponse{Messages: msgs})
}

// ExportThreads stores a JSON copy of the user's threads.
func (h *UserHandler) ExportThreads(w http.ResponseWriter, r *http.Request) {
	archive, err := h.inbox.ExportThreads(r.Context(), identityFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "failed to export threads")
		return
	}
	writeJSON(w, http.StatusCreated, ArchiveResponse{Archive: archive})
}

func (h *UserHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	rc, err := h.inbox.OpenArchive(
		r.Context(),
		identityFromContext(r.Context()),
		chi.URLParam(r, "username"),
		chi.URLParam(r, "archiveID"),
	)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch archive")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
