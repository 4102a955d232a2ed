package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/otpbazaar/golang_services/internal/cancellation_service/app"
	"github.com/otpbazaar/golang_services/internal/cancellation_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/httpserver"
)

type ReconcileRunner interface {
	Run(ctx context.Context) (domain.RunSummary, error)
}

type CancellationEnqueuer interface {
	Enqueue(ctx context.Context, req app.EnqueueRequest) (*domain.PendingCancellation, error)
}

type Handler struct {
	runner   ReconcileRunner
	enqueuer CancellationEnqueuer
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(runner ReconcileRunner, enqueuer CancellationEnqueuer, logger *slog.Logger) *Handler {
	return &Handler{
		runner:   runner,
		enqueuer: enqueuer,
		validate: validator.New(),
		logger:   logger.With("component", "cancellation_http_handler"),
	}
}

// Routes mounts the handlers; callers wrap the group with auth as needed.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/functions/v1/process-cancellations", h.ProcessCancellations)
	r.Post("/functions/v1/queue-cancellation", h.QueueCancellation)
}

type processResponse struct {
	Success bool `json:"success"`
	domain.RunSummary
}

func (h *Handler) ProcessCancellations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	// The batch outlives a caller that disconnects mid-run.
	summary, err := h.runner.Run(context.WithoutCancel(ctx))
	if err != nil {
		logger.ErrorContext(ctx, "Cancellation run failed", "error", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "Failed to fetch pending cancellations")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, processResponse{Success: true, RunSummary: summary})
}

func (h *Handler) QueueCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req app.EnqueueRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		if errors.Is(err, httpserver.ErrBodyTooLarge) {
			httpserver.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		httpserver.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "Invalid queue-cancellation request", "error", err)
		httpserver.WriteError(w, http.StatusBadRequest, "activation_id, server_id and phone_number are required")
		return
	}

	pc, err := h.enqueuer.Enqueue(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to queue cancellation", "error", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "Failed to queue cancellation")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"id":           pc.ID,
		"cancel_after": pc.CancelAfter,
	})
}
