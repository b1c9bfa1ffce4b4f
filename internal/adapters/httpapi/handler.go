package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	userIDCtxKey    ctxKey = "user_id"
	maxJSONBodySize        = 1 << 20
)

const (
	msgUnauthorized  = "Unauthorized"
	msgNotAuthorized = "Not authorized"
	msgNotFound      = "Event not found"
	msgServerError   = "Server error"
	msgDeleted       = "Event deleted"
)

// Options holds the optional collaborators of a Handler.
type Options struct {
	// UploadDir is served read-only under /uploads/. Empty disables the route.
	UploadDir string
	// OutboxMetrics, when set, is reported by /healthz.
	OutboxMetrics func() usecase.OutboxDispatcherMetrics
}

type Handler struct {
	events *usecase.EventService
	auth   *usecase.AuthService
	audit  *usecase.AuditService
	opts   Options
	log    *zap.Logger
}

func NewHandler(events *usecase.EventService, auth *usecase.AuthService, audit *usecase.AuditService, log *zap.Logger, opts Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{events: events, auth: auth, audit: audit, opts: opts, log: log}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(h.logRequests)
	r.Use(h.recoverPanics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	if h.opts.UploadDir != "" {
		r.Handle("/uploads/*", uploadsHandler(h.opts.UploadDir))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireUser)
		pr.Get("/auth/me", h.me)

		pr.Get("/events", h.listEvents)
		pr.Post("/events", h.createEvent)
		pr.Get("/events/{id}", h.getEvent)
		pr.Put("/events/{id}", h.updateEvent)
		pr.Delete("/events/{id}", h.deleteEvent)
		pr.Get("/events/{id}/history", h.eventHistory)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"ok": true}
	if h.opts.OutboxMetrics != nil {
		m := h.opts.OutboxMetrics()
		body["outbox"] = map[string]int64{
			"dispatched": m.DispatchSuccessTotal,
			"failed":     m.DispatchFailureTotal,
			"dead":       m.DispatchDeadTotal,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := h.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}
			h.serverError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDCtxKey, apiKey.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.log.Error("panic in handler",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Stack("stack"))
			writeError(w, http.StatusInternalServerError, msgServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// uploadsHandler serves stored attachments. Directory listings are not exposed.
func uploadsHandler(dir string) http.Handler {
	files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		files.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, `{"message":"Server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

type errorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: strings.Join(validation.Errors, "; "),
			Errors:  validation.Errors,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, msgNotAuthorized)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "Email already registered")
	default:
		h.serverError(w, r, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed",
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())))
	writeError(w, http.StatusInternalServerError, msgServerError)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDCtxKey).(string)
	return id
}

func mutationMetadata(r *http.Request) domain.MutationMetadata {
	reqID := middleware.GetReqID(r.Context())
	return domain.MutationMetadata{
		Actor:     userIDFromContext(r.Context()),
		Source:    "http",
		RequestID: reqID,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
