package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

var (
	admin    = auth.Context{PrincipalID: "admin-1", Role: auth.RoleAdmin}
	shopper  = auth.Context{PrincipalID: "user-c1", Role: auth.RoleCustomer}
	stranger = auth.Context{PrincipalID: "user-c2", Role: auth.RoleCustomer}
	seller   = auth.Context{PrincipalID: "seller-1", Role: auth.RoleUser}
)

type event struct {
	Type    string
	Key     string
	Payload any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Emit(_ context.Context, eventType, key string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{eventType, key, payload})
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGateway struct {
	err   error
	calls []gateway.IntentRequest
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return gateway.Intent{}, g.err
	}
	return gateway.Intent{ID: "pref-" + req.OrderID, RedirectURL: "https://pay.test/" + req.OrderID}, nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

type memCache struct {
	mu sync.Mutex
	m  map[string]StatusView
}

func (c *memCache) Get(_ context.Context, id string) (StatusView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, v StatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[v.OrderID] = v
	return nil
}

func (c *memCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	now    time.Time
	store  *memstore.Store
	svc    *Service
	gw     *fakeGateway
	events *recorder
	dedup  *memDedup
	cache  *memCache
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		now:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		store:  memstore.New(),
		gw:     &fakeGateway{},
		events: &recorder{},
		dedup:  &memDedup{seen: map[string]bool{}},
		cache:  &memCache{m: map[string]StatusView{}},
	}
	f.svc = New(f.store,
		WithClock(func() time.Time { return f.now }),
		WithEmitter(f.events),
		WithGateway(f.gw),
		WithDeduper(f.dedup),
		WithStatusCache(f.cache),
		WithLogger(zap.NewNop()),
		WithPaymentTimeout(time.Second),
	)

	f.store.PutCustomer(orders.Customer{ID: "c1", UserID: shopper.PrincipalID, FirstName: "Ana", LastName: "Ruiz", Email: "ana@example.com", Active: true})
	f.store.PutCustomer(orders.Customer{ID: "c2", UserID: stranger.PrincipalID, FirstName: "Luis", Email: "luis@example.com", Active: true})
	return f
}

func (f *fixture) product(id, name, price string, stock int) {
	f.store.PutProduct(orders.Product{ID: id, SKU: "SKU-" + id, Name: name, Price: decimal.RequireFromString(price), Stock: stock, Active: true})
}

func (f *fixture) stock(id string) int {
	f.t.Helper()
	p, err := f.store.GetProduct(f.ctx, id)
	require.NoError(f.t, err)
	return p.Stock
}

func (f *fixture) movements(id string) []orders.InventoryMovement {
	f.t.Helper()
	ms, err := f.store.ListMovements(f.ctx, id, 0)
	require.NoError(f.t, err)
	return ms
}

func (f *fixture) order(id string) orders.Order {
	f.t.Helper()
	o, err := f.svc.GetOrder(f.ctx, admin, id)
	require.NoError(f.t, err)
	return o
}

// place creates a customer order for c1.
func (f *fixture) place(items ...LineItem) orders.Order {
	f.t.Helper()
	o, err := f.svc.CreateOrder(f.ctx, shopper, CreateOrderRequest{Items: items})
	require.NoError(f.t, err)
	return o
}

func (f *fixture) pay(orderID string) {
	f.t.Helper()
	_, err := f.svc.UpdatePaymentStatus(f.ctx, admin, orderID, PaymentUpdate{PaymentStatus: orders.PaymentPaid})
	require.NoError(f.t, err)
}

func (f *fixture) setStatus(orderID string, to orders.Status) (orders.Order, error) {
	return f.svc.UpdateOrderStatus(f.ctx, admin, orderID, StatusUpdate{Status: to, TrackingNumber: "TRK-1"})
}

func item(productID string, qty int) LineItem {
	return LineItem{ProductID: productID, Quantity: qty}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
