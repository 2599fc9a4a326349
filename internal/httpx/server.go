package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/logger"
)

func NewRouter(log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware(log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Handlers groups everything the API serves.
type Handlers struct {
	Orders       *OrdersHandler
	Reservations *ReservationsHandler
	Inventory    *InventoryHandler
	Payments     *PaymentsHandler
}

// Mount registers the webhook unauthenticated and every other route behind
// Authenticate.
func Mount(r chi.Router, v tokenVerifier, h Handlers) {
	if h.Payments != nil {
		h.Payments.Register(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(v))
		h.Orders.Register(r)
		h.Reservations.Register(r)
		h.Inventory.Register(r)
	})
}
