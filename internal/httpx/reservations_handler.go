package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type ReservationsHandler struct {
	Orders *lifecycle.Service
	Log    *zap.Logger
}

func (h *ReservationsHandler) Register(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/my", h.listMine)
		r.Post("/{id}/approve", h.approve)
		r.Patch("/{id}/cancel", h.cancel)
		r.Post("/{id}/convert", h.convert)
	})
}

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.ReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	res, err := h.Orders.CreateReservation(ctx, auth.FromContext(ctx), req)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, res, "Reservation created")
}

func (h *ReservationsHandler) filter(r *http.Request) (orders.ReservationFilter, error) {
	limit, err := queryLimit(r)
	if err != nil {
		return orders.ReservationFilter{}, err
	}
	q := r.URL.Query()
	return orders.ReservationFilter{
		UserID: q.Get("user_id"),
		Status: orders.ReservationStatus(q.Get("status")),
		Limit:  limit,
	}, nil
}

func (h *ReservationsHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := h.Orders.ListReservations(ctx, auth.FromContext(ctx), f)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, out, "")
}

func (h *ReservationsHandler) listMine(w http.ResponseWriter, r *http.Request) {
	f, err := h.filter(r)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := h.Orders.ListMyReservations(ctx, auth.FromContext(ctx), f)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, out, "")
}

func (h *ReservationsHandler) approve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.ApproveReservation(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, o, "Reservation approved")
}

func (h *ReservationsHandler) convert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.ConvertReservation(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, o, "Reservation converted to order")
}

func (h *ReservationsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	res, err := h.Orders.CancelReservation(ctx, auth.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, res, "Reservation cancelled")
}
