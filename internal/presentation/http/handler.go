// Package http exposes the backoffice and read-side endpoints.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sagaflow/internal/application/backoffice"
	"sagaflow/internal/config"
	"sagaflow/internal/domain/order"
	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/logging"
	"sagaflow/internal/pkg/metrics"
)

var validate = validatorv10.New()

type Handler struct {
	backoffice *backoffice.Service
	orders     order.Repository
	reports    order.ReportRepository
}

func NewHandler(bo *backoffice.Service, orders order.Repository, reports order.ReportRepository) *Handler {
	return &Handler{backoffice: bo, orders: orders, reports: reports}
}

// Router wires the routes with the shared middleware stack.
func (h *Handler) Router(logger *zap.Logger, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Observability(logger, m))
	r.Use(middleware.Recoverer)

	r.Post("/backoffice/orders", h.submitOrder)
	r.Post("/backoffice/stock-reservation", h.submitStockReservation)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/reports/latest", h.latestReport)
	r.Get("/healthz", h.healthz)
	r.Get("/version", h.version)
	return r
}

type submitOrderRequest struct {
	CustomerID    string         `json:"customerId" validate:"required"`
	Customer      order.Customer `json:"customer"`
	Items         []order.Item   `json:"items" validate:"required,min=1"`
	TotalAmount   float64        `json:"totalAmount" validate:"required,gt=0"`
	PaymentMethod string         `json:"paymentMethod" validate:"required"`
}

type submitStockRequest struct {
	OrderID string       `json:"orderId" validate:"required"`
	Items   []order.Item `json:"items" validate:"required,min=1"`
}

type submitResponse struct {
	Message string `json:"message"`
	EventID string `json:"eventId"`
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	eventID, err := h.backoffice.SubmitOrder(r.Context(), messaging.OrderCreate{
		CustomerID:    req.CustomerID,
		Customer:      req.Customer,
		Items:         req.Items,
		TotalAmount:   req.TotalAmount,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not submit order")
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		Message: "order submitted",
		EventID: eventID,
	})
}

func (h *Handler) submitStockReservation(w http.ResponseWriter, r *http.Request) {
	var req submitStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	eventID, err := h.backoffice.SubmitStockReservation(r.Context(), messaging.StockCreate{
		OrderID: req.OrderID,
		Items:   req.Items,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not submit reservation")
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		Message: "stock reservation submitted",
		EventID: eventID,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.orders.FindByID(r.Context(), id)
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("get_order_failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "could not load order")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) latestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Latest(r.Context())
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "no reports yet")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("latest_report_failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "could not load report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": config.Version})
}

// decodeBody parses and validates the request body, writing the 400 itself
// when the payload is malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid payload: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
