package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
)

type InventoryHandler struct {
	Inventory *inventory.Service
	Log       *zap.Logger
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Post("/inventory/adjustments", h.adjust)
	r.Post("/inventory/movements", h.record)
	r.Get("/inventory/movements", h.list)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req inventory.AdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	m, err := h.Inventory.AdjustStock(ctx, auth.FromContext(ctx), req)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, m, "Stock adjusted")
}

func (h *InventoryHandler) record(w http.ResponseWriter, r *http.Request) {
	var req inventory.MovementRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	m, err := h.Inventory.RecordMovement(ctx, auth.FromContext(ctx), req)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, m, "Movement recorded")
}

func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := h.Inventory.ListMovements(ctx, auth.FromContext(ctx), r.URL.Query().Get("product_id"), limit)
	if err != nil {
		respondError(w, r, h.Log, err)
		return
	}
	respondSuccess(w, http.StatusOK, out, "")
}
