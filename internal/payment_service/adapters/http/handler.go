package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/app"
	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/httpserver"
)

type CryptomusPayments interface {
	CreatePayment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*app.CryptomusPayment, error)
	HandleWebhook(ctx context.Context, raw []byte) (*app.WebhookResult, error)
}

type PaytmPayments interface {
	CreatePayment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*app.PaytmIntent, error)
	GetSettings(ctx context.Context) (*domain.PublicPaytmSettings, error)
	CheckStatus(ctx context.Context, userID uuid.UUID, orderID string) (*app.PaytmStatus, error)
}

type UPIPayments interface {
	VerifyPayment(ctx context.Context, userID uuid.UUID, utr string) (*app.UPIVerification, error)
}

type Handler struct {
	cryptomus CryptomusPayments
	paytm     PaytmPayments
	upi       UPIPayments
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewHandler(cryptomus CryptomusPayments, paytm PaytmPayments, upi UPIPayments, logger *slog.Logger) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("utr", func(fl validator.FieldLevel) bool {
		return domain.ValidUTR(strings.TrimSpace(fl.Field().String()))
	})
	return &Handler{
		cryptomus: cryptomus,
		paytm:     paytm,
		upi:       upi,
		validate:  v,
		logger:    logger.With("component", "payment_http_handler"),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/functions/v1/cryptomus-create-payment", h.CryptomusCreatePayment)
	r.Post("/functions/v1/cryptomus-webhook", h.CryptomusWebhook)
	r.Post("/functions/v1/paytm-create-payment", h.PaytmCreatePayment)
	r.Post("/functions/v1/paytm-verify", h.PaytmVerify)
	r.Post("/functions/v1/verify-upi-payment", h.VerifyUPIPayment)
}

type createPaymentRequest struct {
	UserID string          `json:"user_id" validate:"required,uuid"`
	Amount decimal.Decimal `json:"amount"`
}

type paytmVerifyRequest struct {
	Action  string `json:"action" validate:"required,oneof=get_settings check_status"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id" validate:"omitempty,uuid"`
}

type verifyUPIRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	TxnID  string `json:"txn_id" validate:"required,utr"`
}

func (h *Handler) CryptomusCreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createPaymentRequest
	if !h.decode(w, r, &req, "user_id and amount are required") {
		return
	}

	res, err := h.cryptomus.CreatePayment(ctx, uuid.MustParse(req.UserID), req.Amount)
	if err != nil {
		h.writeAppError(w, r, "Cryptomus create payment failed", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"payment_url": res.PaymentURL,
		"order_id":    res.OrderID,
		"amount":      res.Amount.InexactFloat64(),
	})
}

func (h *Handler) CryptomusWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := httpserver.ReadBody(w, r)
	if err != nil {
		h.writeBodyError(w, err)
		return
	}

	res, err := h.cryptomus.HandleWebhook(r.Context(), raw)
	if err != nil {
		h.writeAppError(w, r, "Cryptomus webhook rejected", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": res.Message,
	})
}

func (h *Handler) PaytmCreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createPaymentRequest
	if !h.decode(w, r, &req, "user_id and amount are required") {
		return
	}

	intent, err := h.paytm.CreatePayment(ctx, uuid.MustParse(req.UserID), req.Amount)
	if err != nil {
		h.writeAppError(w, r, "Paytm create payment failed", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"order_id":        intent.OrderID,
		"upi_url":         intent.UPIURL,
		"qr_url":          intent.QRURL,
		"payee_name":      intent.PayeeName,
		"amount":          intent.Amount.InexactFloat64(),
		"timeout_minutes": intent.TimeoutMinutes,
	})
}

func (h *Handler) PaytmVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req paytmVerifyRequest
	if !h.decode(w, r, &req, "action must be get_settings or check_status") {
		return
	}

	switch req.Action {
	case "get_settings":
		settings, err := h.paytm.GetSettings(ctx)
		if err != nil {
			h.writeAppError(w, r, "Paytm get settings failed", err)
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})

	case "check_status":
		userID := uuid.Nil
		if req.UserID != "" {
			userID = uuid.MustParse(req.UserID)
		}
		status, err := h.paytm.CheckStatus(ctx, userID, req.OrderID)
		if err != nil {
			h.writeAppError(w, r, "Paytm status check failed", err)
			return
		}
		body := map[string]any{
			"success":  true,
			"status":   status.Status,
			"order_id": status.OrderID,
		}
		if status.Message != "" {
			body["message"] = status.Message
		}
		if status.UTR != "" {
			body["utr"] = status.UTR
		}
		if status.TxnID != "" {
			body["txn_id"] = status.TxnID
		}
		if status.Amount != nil {
			body["amount"] = status.Amount.InexactFloat64()
		}
		if status.NewBalance != nil {
			body["new_balance"] = status.NewBalance.InexactFloat64()
		}
		httpserver.WriteJSON(w, http.StatusOK, body)
	}
}

func (h *Handler) VerifyUPIPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req verifyUPIRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		h.writeBodyError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "TxnID" && verrs[0].Tag() == "utr" {
			httpserver.WriteError(w, http.StatusBadRequest, "Invalid UTR. It must be up to 12 letters or digits and must not start with 0")
			return
		}
		httpserver.WriteError(w, http.StatusBadRequest, "user_id and txn_id are required")
		return
	}

	res, err := h.upi.VerifyPayment(ctx, uuid.MustParse(req.UserID), req.TxnID)
	if err != nil {
		h.writeAppError(w, r, "UPI verification failed", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     res.Message,
		"utr":         res.UTR,
		"amount":      res.Amount.InexactFloat64(),
		"new_balance": res.NewBalance.InexactFloat64(),
	})
}

// decode reads and validates a JSON request, writing the 400 itself on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, invalidMsg string) bool {
	if err := httpserver.DecodeJSON(w, r, dst); err != nil {
		h.writeBodyError(w, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.logger.WarnContext(r.Context(), "Invalid payment request",
			"error", err, "path", r.URL.Path, "request_id", chi_middleware.GetReqID(r.Context()))
		httpserver.WriteError(w, http.StatusBadRequest, invalidMsg)
		return false
	}
	return true
}

func (h *Handler) writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, httpserver.ErrBodyTooLarge) {
		httpserver.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	httpserver.WriteError(w, http.StatusBadRequest, "Invalid request body")
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, logMsg string, err error) {
	ctx := r.Context()
	status, msg := domain.StatusAndMessage(err)
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "path", r.URL.Path, "status", status)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, logMsg, "error", err)
	} else {
		logger.InfoContext(ctx, logMsg, "error", err)
	}
	httpserver.WriteError(w, status, msg)
}
