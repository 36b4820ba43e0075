package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/models"
	"github.com/AH96HSQ/Zurtex-Global/internal/monitor"
	"github.com/AH96HSQ/Zurtex-Global/internal/payments"
	"github.com/AH96HSQ/Zurtex-Global/internal/services"
	"github.com/AH96HSQ/Zurtex-Global/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Handler struct {
	Orders  *services.OrderService
	Monitor *monitor.Monitor
	Ledger  *payments.Ledger
	Counts  StatusCounter
	Logger  zerolog.Logger
}

// StatusCounter feeds the monitoring endpoint.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
	ListOpenOrders(ctx context.Context, now time.Time) ([]*models.Order, error)
}

type createOrderRequest struct {
	Email    string `json:"email"`
	PlanType string `json:"planType"`
}

type createOrderResponse struct {
	Success        bool   `json:"success"`
	OrderID        string `json:"orderId"`
	PaymentAddress string `json:"paymentAddress"`
	Amount         string `json:"amount"`
	AmountUSD      string `json:"amountUSD"`
	PlanType       string `json:"planType"`
	ExpiresAt      string `json:"expiresAt"`
	PaymentURI     string `json:"paymentUri"`
	QRCode         string `json:"qrCode"`
	LTCPriceUSD    string `json:"ltcPriceUSD"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.CreateOrder(r.Context(), req.Email, req.PlanType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingEmail):
			writeError(w, http.StatusBadRequest, "email and planType are required")
		case errors.Is(err, services.ErrUnknownPlan):
			writeError(w, http.StatusBadRequest, "invalid plan type")
		case errors.Is(err, store.ErrIndexClaimed):
			h.Logger.Error().Err(err).Msg("address allocation conflict")
			writeError(w, http.StatusConflict, "address allocation conflict, retry")
		default:
			h.Logger.Error().Err(err).Msg("create order failed")
			writeError(w, http.StatusInternalServerError, "failed to create payment order")
		}
		return
	}

	qr, err := services.PaymentQRCode(order)
	if err != nil {
		h.Logger.Error().Err(err).Str("order_id", order.OrderID).Msg("qr encode failed")
	}

	writeJSON(w, http.StatusOK, createOrderResponse{
		Success:        true,
		OrderID:        order.OrderID,
		PaymentAddress: order.PaymentAddress,
		Amount:         order.PriceLTC.StringFixed(8),
		AmountUSD:      order.PriceUSD.StringFixed(2),
		PlanType:       order.PlanType,
		ExpiresAt:      order.ExpiresAt.Format(time.RFC3339),
		PaymentURI:     services.PaymentURI(order),
		QRCode:         qr,
		LTCPriceUSD:    order.PriceUSD.DivRound(order.PriceLTC, 2).StringFixed(2),
	})
}

type orderStatusResponse struct {
	OrderID        string `json:"orderId"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	AmountUSD      string `json:"amountUSD"`
	PaymentAddress string `json:"paymentAddress"`
	TxHash         string `json:"txHash,omitempty"`
	Confirmations  int64  `json:"confirmations"`
	AmountReceived string `json:"amountReceived"`
	ExpiresAt      string `json:"expiresAt"`
	PaidAt         string `json:"paidAt,omitempty"`
	CompletedAt    string `json:"completedAt,omitempty"`
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("get order failed")
		writeError(w, http.StatusInternalServerError, "failed to check payment status")
		return
	}

	writeJSON(w, http.StatusOK, orderToStatusResponse(order))
}

// Refresh runs one on-demand poll of the order's address through the same
// observation path the background monitor uses.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("get order failed")
		writeError(w, http.StatusInternalServerError, "failed to refresh payment status")
		return
	}

	if order.Status.Open() {
		if _, err := h.Monitor.CheckOrder(r.Context(), order); err != nil {
			h.Logger.Error().Err(err).Str("order_id", orderID).Msg("manual refresh failed")
			writeError(w, http.StatusBadGateway, "failed to refresh payment status")
			return
		}
	}

	writeJSON(w, http.StatusOK, orderToStatusResponse(order))
}

func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	quotes, rate, err := h.Orders.QuotePlans(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("quote plans failed")
		writeError(w, http.StatusBadGateway, "failed to fetch plans")
		return
	}

	type planJSON struct {
		Type     string `json:"type"`
		PriceUSD string `json:"priceUSD"`
		PriceLTC string `json:"priceLTC"`
	}
	plans := make([]planJSON, 0, len(quotes))
	for _, q := range quotes {
		plans = append(plans, planJSON{
			Type:     q.Type,
			PriceUSD: q.PriceUSD.StringFixed(2),
			PriceLTC: q.PriceLTC.StringFixed(8),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"ltcPriceUSD": rate.StringFixed(2),
		"plans":       plans,
	})
}

func (h *Handler) UserOrders(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	orders, err := h.Orders.ListUserOrders(r.Context(), email, 20)
	if err != nil {
		if errors.Is(err, services.ErrMissingEmail) {
			writeError(w, http.StatusBadRequest, "missing email")
			return
		}
		h.Logger.Error().Err(err).Msg("list user orders failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch payments")
		return
	}

	type userOrderJSON struct {
		OrderID     string `json:"orderId"`
		PlanType    string `json:"planType"`
		Status      string `json:"status"`
		Amount      string `json:"amount"`
		AmountUSD   string `json:"amountUSD"`
		CreatedAt   string `json:"createdAt"`
		PaidAt      string `json:"paidAt,omitempty"`
		CompletedAt string `json:"completedAt,omitempty"`
	}
	out := make([]userOrderJSON, 0, len(orders))
	for _, order := range orders {
		item := userOrderJSON{
			OrderID:   order.OrderID,
			PlanType:  order.PlanType,
			Status:    string(order.Status),
			Amount:    order.PriceLTC.StringFixed(8),
			AmountUSD: order.PriceUSD.StringFixed(2),
			CreatedAt: order.CreatedAt.Format(time.RFC3339),
		}
		if order.PaidAt != nil {
			item.PaidAt = order.PaidAt.Format(time.RFC3339)
		}
		if order.CompletedAt != nil {
			item.CompletedAt = order.CompletedAt.Format(time.RFC3339)
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "payments": out})
}

type webhookRequest struct {
	Address       string `json:"address"`
	Confirmations int64  `json:"confirmations"`
	Value         int64  `json:"value"`
	Hash          string `json:"hash"`
}

// Webhook ingests a push notification from the chain-data provider. It shares
// the ledger entrypoint with the poll loop, so a duplicate delivery or a race
// against the poller is harmless.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Address == "" || req.Hash == "" {
		writeError(w, http.StatusBadRequest, "address and hash are required")
		return
	}

	order, outcome, err := h.Monitor.ProcessPush(r.Context(), req.Address, req.Hash, req.Confirmations, req.Value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Logger.Info().Str("address", req.Address).Msg("webhook for unknown address")
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		h.Logger.Error().Err(err).Str("address", req.Address).Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "failed to process webhook")
		return
	}

	status := "processed"
	if outcome == payments.OutcomeUnderpaid {
		status = "insufficient_amount"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "orderId": order.OrderID})
}

type manualConfirmRequest struct {
	OrderID string `json:"orderId"`
	TxHash  string `json:"txHash"`
}

func (h *Handler) ManualConfirm(w http.ResponseWriter, r *http.Request) {
	var req manualConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.OrderID == "" || req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "orderId and txHash are required")
		return
	}

	order, err := h.Orders.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		h.Logger.Error().Err(err).Str("order_id", req.OrderID).Msg("get order failed")
		writeError(w, http.StatusInternalServerError, "failed to confirm payment")
		return
	}
	if order.Status == models.StatusCompleted {
		writeJSON(w, http.StatusOK, map[string]string{"message": "payment already completed"})
		return
	}

	confirmed, err := h.Ledger.ForceComplete(r.Context(), order, req.TxHash)
	if err != nil {
		h.Logger.Error().Err(err).Str("order_id", req.OrderID).Msg("manual confirm failed")
		writeError(w, http.StatusInternalServerError, "failed to confirm payment")
		return
	}
	if !confirmed {
		writeError(w, http.StatusConflict, "payment is not in a confirmable state")
		return
	}

	h.Logger.Info().Str("order_id", req.OrderID).Msg("payment manually confirmed")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orderId": order.OrderID})
}

// MonitorStatus reports ledger counts and the set of orders under watch.
func (h *Handler) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Counts.CountByStatus(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("count by status failed")
		writeError(w, http.StatusInternalServerError, "failed to read monitor status")
		return
	}

	open, err := h.Counts.ListOpenOrders(r.Context(), time.Now().UTC())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list open orders failed")
		writeError(w, http.StatusInternalServerError, "failed to read monitor status")
		return
	}

	type watchedJSON struct {
		OrderID        string `json:"orderId"`
		PaymentAddress string `json:"paymentAddress"`
		Status         string `json:"status"`
		CreatedAt      string `json:"createdAt"`
		ExpiresAt      string `json:"expiresAt"`
	}
	watched := make([]watchedJSON, 0, len(open))
	for _, order := range open {
		watched = append(watched, watchedJSON{
			OrderID:        order.OrderID,
			PaymentAddress: order.PaymentAddress,
			Status:         string(order.Status),
			CreatedAt:      order.CreatedAt.Format(time.RFC3339),
			ExpiresAt:      order.ExpiresAt.Format(time.RFC3339),
		})
	}

	statistics := make(map[string]int64, len(counts))
	for status, n := range counts {
		statistics[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "active",
		"statistics": statistics,
		"monitoring": watched,
	})
}

func orderToStatusResponse(order *models.Order) orderStatusResponse {
	resp := orderStatusResponse{
		OrderID:        order.OrderID,
		Status:         string(order.Status),
		Amount:         order.PriceLTC.StringFixed(8),
		AmountUSD:      order.PriceUSD.StringFixed(2),
		PaymentAddress: order.PaymentAddress,
		Confirmations:  order.Confirmations,
		AmountReceived: models.LitoshiToLTC(order.ReceivedLitoshi).StringFixed(8),
		ExpiresAt:      order.ExpiresAt.Format(time.RFC3339),
	}
	if order.TxHash != nil {
		resp.TxHash = *order.TxHash
	}
	if order.PaidAt != nil {
		resp.PaidAt = order.PaidAt.Format(time.RFC3339)
	}
	if order.CompletedAt != nil {
		resp.CompletedAt = order.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
