package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mactabak/internal/domain"
	"mactabak/internal/service"
)

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in service.CreateOrderInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.orders.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonOK(w, map[string]any{"success": true, "order": res})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "order": o})
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.OrderID == "" || in.Status == "" {
		jsonErr(w, http.StatusBadRequest, "orderId and status are required")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), in.OrderID, in.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "order": o})
}

// handleNotifyManager forwards the posted order, or a stored one by orderId.
func (h *Handler) handleNotifyManager(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Order   *service.ManagerOrderInput `json:"order"`
		OrderID string                     `json:"orderId"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	var err error
	switch {
	case in.Order != nil:
		err = h.orders.NotifyManagerOrder(r.Context(), *in.Order)
	case in.OrderID != "":
		err = h.orders.NotifyManager(r.Context(), in.OrderID)
	default:
		jsonErr(w, http.StatusBadRequest, "order is required")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.orders.SavedData(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "savedData": saved})
}

func (h *Handler) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "orders": orders})
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cart, err := h.orders.Cart(r.Context(), userID)
	if err != nil {
		if domain.IsNotFound(err) {
			jsonOK(w, map[string]any{"success": true, "cart": domain.Cart{UserID: userID, Items: []domain.CartItem{}}})
			return
		}
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "cart": cart})
}

func (h *Handler) handleSaveCart(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in struct {
		Items []domain.CartItem `json:"items"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	cart, err := h.orders.SaveCart(r.Context(), userID, in.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true, "cart": cart})
}

type webhookRequest struct {
	Action string `json:"action"`
	Data   struct {
		OrderID string `json:"orderId"`
		UserID  int64  `json:"userId"`
	} `json:"data"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var in webhookRequest
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	var err error
	switch in.Action {
	case "order_created":
		err = h.orders.Route(r.Context(), in.Data.OrderID)
	case "payment_confirmed":
		_, err = h.orders.ConfirmPayment(r.Context(), in.Data.OrderID, in.Data.UserID)
	default:
		h.logger.Warn("unknown webhook action", zap.String("action", in.Action))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"success": true})
}
