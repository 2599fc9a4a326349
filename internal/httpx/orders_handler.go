package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type OrdersHandler struct {
	Orders *lifecycle.Service
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Post("/checkout", h.checkout)
		r.Get("/", h.listOrders)
		r.Get("/my", h.listMyOrders)
		r.Get("/summary", h.summary)
		r.Get("/weekly", h.weekly)
		r.Get("/recent", h.recent)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getStatus)
		r.Patch("/{id}/status", h.updateStatus)
		r.Patch("/{id}/payment", h.updatePayment)
		r.Post("/{id}/cancel", h.cancelOwn)
		r.Post("/{id}/payment-intent", h.paymentIntent)
		r.Delete("/{id}", h.deleteOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.CreateOrder(ctx, auth.FromContext(ctx), req)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, o, "Order created")
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	res, err := h.Orders.Checkout(ctx, auth.FromContext(ctx), req)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, res, "Checkout started")
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	q := r.URL.Query()
	f := orders.OrderFilter{
		CustomerID: q.Get("customer_id"),
		Status:     orders.Status(q.Get("status")),
		Limit:      limit,
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := h.Orders.ListOrders(ctx, auth.FromContext(ctx), f)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, out, "")
}

func (h *OrdersHandler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := h.Orders.ListMyOrders(ctx, auth.FromContext(ctx), limit)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, out, "")
}

func (h *OrdersHandler) summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := h.Orders.OrderSummary(ctx, auth.FromContext(ctx))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, out, "")
}

func (h *OrdersHandler) weekly(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	series, err := h.Orders.WeeklySales(ctx, auth.FromContext(ctx))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]any{"series": series}, "")
}

func (h *OrdersHandler) recent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := h.Orders.RecentActivity(ctx, auth.FromContext(ctx), limit)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, out, "")
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, o, "")
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	v, err := h.Orders.OrderStatus(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, v, "")
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.StatusUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.UpdateOrderStatus(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, o, "Order status updated")
}

func (h *OrdersHandler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.PaymentUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.UpdatePaymentStatus(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, o, "Payment status updated")
}

func (h *OrdersHandler) cancelOwn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.CancelOwnOrder(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, o, "Order cancelled")
}

func (h *OrdersHandler) paymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	intent, err := h.Orders.CreatePaymentIntent(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, intent, "")
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	if err := h.Orders.DeleteOrder(ctx, auth.FromContext(ctx), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, nil, "Order deleted")
}
