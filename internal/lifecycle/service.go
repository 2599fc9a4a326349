// Package lifecycle moves orders through their fulfillment and payment state
// machines and keeps product stock consistent with them.
package lifecycle

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// PaymentGateway creates hosted payment intents for orders.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error)
}

// Deduper remembers keys it has seen. Claim reports true the first time a key is seen.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// StatusCache holds the latest status snapshot per order.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (StatusView, bool, error)
	Set(ctx context.Context, v StatusView) error
	Delete(ctx context.Context, orderID string) error
}

type StatusView struct {
	OrderID        string               `json:"order_id"`
	Status         orders.Status        `json:"status"`
	PaymentStatus  orders.PaymentStatus `json:"payment_status"`
	CustomerUserID string               `json:"customer_user_id,omitempty"`
	AssignedUserID string               `json:"assigned_user_id,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

type Service struct {
	store    orders.Store
	ledger   *inventory.Ledger
	events   orders.Emitter
	payments PaymentGateway
	dedup    Deduper
	cache    StatusCache
	log      *zap.Logger
	now      func() time.Time

	reservationTTL time.Duration
	paymentTimeout time.Duration
}

type Option func(*Service)

func WithEmitter(e orders.Emitter) Option       { return func(s *Service) { s.events = e } }
func WithGateway(g PaymentGateway) Option       { return func(s *Service) { s.payments = g } }
func WithDeduper(d Deduper) Option              { return func(s *Service) { s.dedup = d } }
func WithStatusCache(c StatusCache) Option      { return func(s *Service) { s.cache = c } }
func WithLogger(l *zap.Logger) Option           { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option     { return func(s *Service) { s.now = now } }
func WithReservationTTL(d time.Duration) Option { return func(s *Service) { s.reservationTTL = d } }
func WithPaymentTimeout(d time.Duration) Option { return func(s *Service) { s.paymentTimeout = d } }

func New(store orders.Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		events:         orders.NopEmitter{},
		payments:       gateway.Disabled{},
		log:            zap.NewNop(),
		now:            func() time.Time { return time.Now().UTC() },
		reservationTTL: 30 * time.Minute,
		paymentTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = inventory.NewLedger(s.now)
	return s
}

// commitStock checks every product first and only then decrements, so a
// shortfall on any line leaves all stock untouched. Products are locked in id
// order to keep concurrent commits from deadlocking.
func (s *Service) commitStock(ctx context.Context, repo orders.Repository, orderID string, items []orders.OrderItem, reason string) error {
	ids, qty := orders.Quantities(items)
	sort.Strings(ids)

	for _, id := range ids {
		p, err := repo.LockProduct(ctx, id)
		if err != nil {
			return notFoundOr(err, "product", id, "lock product")
		}
		if p.Stock < qty[id] {
			return apperr.NewInsufficientStock(p.Name, p.Stock, qty[id])
		}
	}
	for _, id := range ids {
		if _, err := s.ledger.ApplyDelta(ctx, repo, inventory.Change{
			ProductID: id,
			Delta:     -qty[id],
			Type:      orders.MovementOut,
			Reason:    reason,
			Reference: orderID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) restoreStock(ctx context.Context, repo orders.Repository, orderID string, items []orders.OrderItem, reason string) error {
	ids, qty := orders.Quantities(items)
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := s.ledger.ApplyDelta(ctx, repo, inventory.Change{
			ProductID: id,
			Delta:     qty[id],
			Type:      orders.MovementReturn,
			Reason:    reason,
			Reference: orderID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) lockOrder(ctx context.Context, repo orders.Repository, id string) (orders.Order, error) {
	o, err := repo.LockOrder(ctx, id)
	if err != nil {
		return orders.Order{}, notFoundOr(err, "order", id, "lock order")
	}
	o.Items, err = repo.ListOrderItems(ctx, id)
	if err != nil {
		return orders.Order{}, apperr.Wrap("load order items", err)
	}
	return o, nil
}

// owns reports whether the caller may act on the order as its owner: the
// customer linked to the caller, or the seller it is assigned to.
func (s *Service) owns(ctx context.Context, repo orders.Repository, ac auth.Context, o orders.Order) (bool, error) {
	if ac.IsAdmin() {
		return true, nil
	}
	if o.AssignedUserID != "" && o.AssignedUserID == ac.PrincipalID {
		return true, nil
	}
	c, err := repo.GetCustomer(ctx, o.CustomerID)
	if errors.Is(err, orders.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap("load customer", err)
	}
	return c.UserID != "" && c.UserID == ac.PrincipalID, nil
}

func (s *Service) statusView(ctx context.Context, o orders.Order) StatusView {
	v := StatusView{
		OrderID:        o.ID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		AssignedUserID: o.AssignedUserID,
		UpdatedAt:      o.UpdatedAt,
	}
	if c, err := s.store.GetCustomer(ctx, o.CustomerID); err == nil {
		v.CustomerUserID = c.UserID
	}
	return v
}

// refreshStatus updates the status cache after a committed transition. Cache
// errors never fail the operation.
func (s *Service) refreshStatus(ctx context.Context, o orders.Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.statusView(ctx, o)); err != nil {
		s.log.Warn("status cache update failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func notFoundOr(err error, entity, id, op string) error {
	if errors.Is(err, orders.ErrNotFound) {
		return apperr.NewNotFound(entity, id)
	}
	return apperr.Wrap(op, err)
}

func itemQtys(items []orders.OrderItem) []orders.ItemQty {
	out := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}
