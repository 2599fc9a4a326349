package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func (s *Service) GetOrder(ctx context.Context, ac auth.Context, orderID string) (orders.Order, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return orders.Order{}, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, notFoundOr(err, "order", orderID, "load order")
	}
	ok, err := s.owns(ctx, s.store, ac, o)
	if err != nil {
		return orders.Order{}, err
	}
	if !ok {
		return orders.Order{}, apperr.NewForbidden("order belongs to another customer")
	}
	if o.Items, err = s.store.ListOrderItems(ctx, orderID); err != nil {
		return orders.Order{}, apperr.Wrap("load order items", err)
	}
	return o, nil
}

// ListOrders is the admin view, newest first.
func (s *Service) ListOrders(ctx context.Context, ac auth.Context, f orders.OrderFilter) ([]orders.Order, error) {
	if err := ac.RequireAdmin(); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.NewValidation("invalid status", "status")
	}
	f.Limit = clampLimit(f.Limit)
	return s.listOrders(ctx, f)
}

// ListMyOrders returns the orders of the caller's customer record, or for
// sellers the orders assigned to them.
func (s *Service) ListMyOrders(ctx context.Context, ac auth.Context, limit int) ([]orders.Order, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return nil, err
	}
	f := orders.OrderFilter{Limit: clampLimit(limit)}
	if ac.Role == auth.RoleCustomer {
		c, err := s.store.FindCustomerByUserID(ctx, ac.PrincipalID)
		if errors.Is(err, orders.ErrNotFound) {
			return []orders.Order{}, nil
		}
		if err != nil {
			return nil, apperr.Wrap("load customer", err)
		}
		f.CustomerID = c.ID
	} else {
		f.AssignedUserID = ac.PrincipalID
	}
	return s.listOrders(ctx, f)
}

func (s *Service) listOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	out, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, apperr.Wrap("list orders", err)
	}
	for i := range out {
		if out[i].Items, err = s.store.ListOrderItems(ctx, out[i].ID); err != nil {
			return nil, apperr.Wrap("load order items", err)
		}
	}
	if out == nil {
		out = []orders.Order{}
	}
	return out, nil
}

// OrderStatus reads the status pair through the cache, falling back to the store.
func (s *Service) OrderStatus(ctx context.Context, ac auth.Context, orderID string) (StatusView, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return StatusView{}, err
	}

	if s.cache != nil {
		v, hit, err := s.cache.Get(ctx, orderID)
		if err != nil {
			s.log.Warn("status cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		if hit {
			if !ac.IsAdmin() && ac.PrincipalID != v.CustomerUserID && ac.PrincipalID != v.AssignedUserID {
				return StatusView{}, apperr.NewForbidden("order belongs to another customer")
			}
			return v, nil
		}
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return StatusView{}, notFoundOr(err, "order", orderID, "load order")
	}
	ok, err := s.owns(ctx, s.store, ac, o)
	if err != nil {
		return StatusView{}, err
	}
	if !ok {
		return StatusView{}, apperr.NewForbidden("order belongs to another customer")
	}
	v := s.statusView(ctx, o)
	if s.cache != nil {
		if err := s.cache.Set(ctx, v); err != nil {
			s.log.Warn("status cache update failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return v, nil
}

// OrderSummary counts pending reservations as orders awaiting action, so they
// add to total and pending, and cancelled reservations add to cancelled.
type OrderSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
	Cancelled int `json:"cancelled"`
	Paid      int `json:"paid"`
}

func (s *Service) OrderSummary(ctx context.Context, ac auth.Context) (OrderSummary, error) {
	if err := ac.RequireAdmin(); err != nil {
		return OrderSummary{}, err
	}
	if _, err := s.ExpireStale(ctx); err != nil {
		s.log.Warn("reservation sweep before summary failed", zap.Error(err))
	}
	oc, err := s.store.CountOrdersByState(ctx)
	if err != nil {
		return OrderSummary{}, apperr.Wrap("count orders", err)
	}
	rc, err := s.store.CountReservationsByState(ctx)
	if err != nil {
		return OrderSummary{}, apperr.Wrap("count reservations", err)
	}
	return OrderSummary{
		Total:     oc.Total + rc.Pending,
		Pending:   oc.Pending + rc.Pending,
		Delivered: oc.Delivered,
		Cancelled: oc.Cancelled + rc.Cancelled,
		Paid:      oc.Paid,
	}, nil
}

const salesWindowDays = 7

// WeeklySales returns one entry per UTC day for the last seven days, oldest
// first, with zero for days without orders.
func (s *Service) WeeklySales(ctx context.Context, ac auth.Context) ([]orders.DaySales, error) {
	if err := ac.RequireAdmin(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(salesWindowDays - 1))

	rows, err := s.store.SalesByDay(ctx, start)
	if err != nil {
		return nil, apperr.Wrap("sales by day", err)
	}
	byDay := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		byDay[r.Date] = r.Sales
	}
	out := make([]orders.DaySales, 0, salesWindowDays)
	for i := 0; i < salesWindowDays; i++ {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, orders.DaySales{Date: day, Sales: byDay[day]})
	}
	return out, nil
}

type Activity struct {
	OrderID   string          `json:"order_id"`
	Total     decimal.Decimal `json:"total_amount"`
	Status    orders.Status   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Customer  string          `json:"customer,omitempty"`
}

const defaultActivityLimit = 10

// RecentActivity lists the newest orders with their customer's name.
func (s *Service) RecentActivity(ctx context.Context, ac auth.Context, limit int) ([]Activity, error) {
	if err := ac.RequireAdmin(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	list, err := s.store.ListOrders(ctx, orders.OrderFilter{Limit: clampLimit(limit)})
	if err != nil {
		return nil, apperr.Wrap("list orders", err)
	}
	names := map[string]string{}
	out := make([]Activity, 0, len(list))
	for _, o := range list {
		name, seen := names[o.CustomerID]
		if !seen {
			c, err := s.store.GetCustomer(ctx, o.CustomerID)
			switch {
			case err == nil:
				name = strings.TrimSpace(c.FirstName + " " + c.LastName)
			case !errors.Is(err, orders.ErrNotFound):
				return nil, apperr.Wrap("load customer", err)
			}
			names[o.CustomerID] = name
		}
		out = append(out, Activity{OrderID: o.ID, Total: o.TotalAmount, Status: o.Status, CreatedAt: o.CreatedAt, Customer: name})
	}
	return out, nil
}
