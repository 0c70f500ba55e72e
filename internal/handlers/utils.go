package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/services"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return services.ValidUsername(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identityFromContext returns the authenticated username, or "" when the
// request carries none.
func identityFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(contextSubjectKey).(string)
	return strings.TrimSpace(subject)
}

// decodeJSON reads a size-limited JSON body into dst and runs its
// validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(strings.ToLower(verrs[0].Field()) + " failed " + verrs[0].Tag() + " validation")
		}
		return err
	}
	return nil
}

func parseMessageID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "messageID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid message id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a service failure onto a status code. Internal
// failures are logged and reported with fallback only.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if errors.Is(err, services.ErrArchiveDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	status := statusFor(services.KindOf(err))
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error(fallback, slog.Any("err", err))
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindBadInput:
		return http.StatusBadRequest
	case services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
