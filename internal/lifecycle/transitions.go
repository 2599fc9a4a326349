package lifecycle

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type StatusUpdate struct {
	Status         orders.Status `json:"status"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
	Notes          string        `json:"notes,omitempty"`
}

type PaymentUpdate struct {
	PaymentStatus    orders.PaymentStatus `json:"payment_status"`
	PaymentMethod    string               `json:"payment_method,omitempty"`
	PaymentReference string               `json:"payment_reference,omitempty"`
	Notes            string               `json:"notes,omitempty"`
}

// UpdateOrderStatus applies an admin fulfillment transition and its stock side
// effects: confirming commits stock, cancelling returns it.
func (s *Service) UpdateOrderStatus(ctx context.Context, ac auth.Context, orderID string, req StatusUpdate) (orders.Order, error) {
	if err := ac.RequireAdmin(); err != nil {
		return orders.Order{}, err
	}
	if !req.Status.Valid() {
		return orders.Order{}, apperr.NewValidation("invalid status", "status")
	}

	var (
		o        orders.Order
		from     orders.Status
		restored bool
	)
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		var err error
		if o, err = s.lockOrder(ctx, repo, orderID); err != nil {
			return err
		}
		from = o.Status
		if !orders.CanTransition(from, req.Status) {
			return apperr.NewInvalidTransition(string(from), string(req.Status), orders.AllowedNext(from))
		}

		switch req.Status {
		case orders.StatusConfirmed:
			if o.PaymentStatus != orders.PaymentPaid {
				return apperr.NewPaymentNotSettled(string(o.PaymentStatus))
			}
			if !o.StockCommitted {
				if err := s.commitStock(ctx, repo, o.ID, o.Items, "order confirmed"); err != nil {
					return err
				}
				o.StockCommitted = true
			}
		case orders.StatusShipped:
			if !o.StockCommitted {
				return apperr.New(apperr.CodeInvalidTransition,
					"cannot ship an order whose stock is not committed",
					"Settle the payment again or cancel the order")
			}
			tracking := strings.TrimSpace(req.TrackingNumber)
			if tracking == "" {
				return apperr.NewValidation("tracking number is required to ship an order", "tracking_number")
			}
			o.TrackingNumber = tracking
		case orders.StatusCancelled:
			if o.StockCommitted {
				if err := s.restoreStock(ctx, repo, o.ID, o.Items, "order cancelled"); err != nil {
					return err
				}
				o.StockCommitted = false
				restored = true
			}
		}

		o.Status = req.Status
		if req.Notes != "" {
			o.Notes = req.Notes
		}
		o.UpdatedAt = s.now()
		if err := repo.UpdateOrder(ctx, &o); err != nil {
			return apperr.Wrap("update order", err)
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.Bool("stock_restored", restored),
	)
	s.events.Emit(ctx, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
		OrderID:        o.ID,
		From:           from,
		To:             o.Status,
		StockRestored:  restored,
		StockCommitted: o.StockCommitted,
	})
	s.refreshStatus(ctx, o)
	return o, nil
}

// UpdatePaymentStatus applies an admin payment transition. It never touches stock.
func (s *Service) UpdatePaymentStatus(ctx context.Context, ac auth.Context, orderID string, req PaymentUpdate) (orders.Order, error) {
	if err := ac.RequireAdmin(); err != nil {
		return orders.Order{}, err
	}
	if !req.PaymentStatus.Valid() {
		return orders.Order{}, apperr.NewValidation("invalid payment status", "payment_status")
	}

	var (
		o           orders.Order
		from        orders.PaymentStatus
		recommitted bool
	)
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		var err error
		if o, err = s.lockOrder(ctx, repo, orderID); err != nil {
			return err
		}
		from = o.PaymentStatus
		if !orders.CanTransitionPayment(from, req.PaymentStatus) {
			return apperr.NewInvalidTransition(string(from), string(req.PaymentStatus), orders.AllowedPaymentNext(from))
		}
		o.PaymentStatus = req.PaymentStatus
		if recommitted, err = s.recommit(ctx, repo, &o); err != nil {
			return err
		}
		if m := strings.TrimSpace(req.PaymentMethod); m != "" {
			o.PaymentMethod = m
		}
		if ref := strings.TrimSpace(req.PaymentReference); ref != "" {
			o.PaymentReference = ref
		}
		if req.Notes != "" {
			o.Notes = req.Notes
		}
		o.UpdatedAt = s.now()
		if err := repo.UpdateOrder(ctx, &o); err != nil {
			return apperr.Wrap("update order", err)
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.paymentChanged(ctx, o, from, "admin", false, recommitted)
	return o, nil
}

// HandleNotification applies a gateway payment notification. Unknown external
// statuses, unknown orders and transitions the gateway may not make are logged
// and dropped so the gateway stops retrying; only storage failures are returned.
func (s *Service) HandleNotification(ctx context.Context, n gateway.Notification) error {
	log := s.log.With(
		zap.String("payment_id", n.PaymentID),
		zap.String("order_id", n.OrderID),
		zap.String("external_status", n.ExternalStatus),
	)

	to, ok := gateway.MapStatus(n.ExternalStatus)
	if !ok {
		log.Warn("ignoring payment notification with unknown status")
		return nil
	}
	if n.OrderID == "" {
		log.Warn("ignoring payment notification without external reference")
		return nil
	}

	key := n.PaymentID + ":" + n.ExternalStatus
	if s.dedup != nil && n.PaymentID != "" {
		fresh, err := s.dedup.Claim(ctx, key)
		if err != nil {
			log.Warn("dedup unavailable, processing anyway", zap.Error(err))
		} else if !fresh {
			log.Debug("duplicate payment notification")
			return nil
		}
	}

	var (
		o           orders.Order
		from        orders.PaymentStatus
		applied     bool
		restored    bool
		recommitted bool
	)
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		var err error
		if o, err = s.lockOrder(ctx, repo, n.OrderID); err != nil {
			return err
		}
		from = o.PaymentStatus
		if from == to {
			return nil
		}
		if !orders.CanApplyGatewayPayment(from, to) {
			log.Warn("gateway reported a payment transition that is not allowed",
				zap.String("from", string(from)), zap.String("to", string(to)))
			return nil
		}

		if from == orders.PaymentPaid && to == orders.PaymentFailed &&
			o.Status == orders.StatusConfirmed && o.StockCommitted {
			if err := s.restoreStock(ctx, repo, o.ID, o.Items, "payment failed after confirmation"); err != nil {
				return err
			}
			o.StockCommitted = false
			restored = true
		}

		o.PaymentStatus = to
		if recommitted, err = s.recommit(ctx, repo, &o); err != nil {
			return err
		}
		o.PaymentMethod = paymentMethodGateway
		o.UpdatedAt = s.now()
		if err := repo.UpdateOrder(ctx, &o); err != nil {
			return apperr.Wrap("update order", err)
		}
		applied = true
		return nil
	})
	if apperr.Is(err, apperr.CodeNotFound) {
		log.Warn("payment notification for unknown order")
		return nil
	}
	if err != nil {
		if s.dedup != nil && n.PaymentID != "" {
			if rerr := s.dedup.Release(ctx, key); rerr != nil {
				log.Error("release dedup key failed", zap.Error(rerr))
			}
		}
		return err
	}
	if applied {
		s.paymentChanged(ctx, o, from, "gateway", restored, recommitted)
	}
	return nil
}

// DeleteOrder removes a pending or confirmed order, returning committed stock first.
func (s *Service) DeleteOrder(ctx context.Context, ac auth.Context, orderID string) error {
	if err := ac.RequireAdmin(); err != nil {
		return err
	}

	var restored bool
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		o, err := s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if o.Status != orders.StatusPending && o.Status != orders.StatusConfirmed {
			return apperr.New(apperr.CodeInvalidTransition,
				"cannot delete an order in status '"+string(o.Status)+"'",
				"Deletable statuses: pending, confirmed")
		}
		if o.StockCommitted {
			if err := s.restoreStock(ctx, repo, o.ID, o.Items, "order deleted"); err != nil {
				return err
			}
			restored = true
		}
		if err := repo.DeleteOrderItems(ctx, o.ID); err != nil {
			return apperr.Wrap("delete order items", err)
		}
		if err := repo.DeleteOrder(ctx, o.ID); err != nil {
			return apperr.Wrap("delete order", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, orderID); err != nil {
			s.log.Warn("status cache eviction failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	s.log.Info("order deleted", zap.String("order_id", orderID), zap.Bool("stock_restored", restored))
	s.events.Emit(ctx, orders.EventOrderDeleted, orderID, orders.OrderDeletedPayload{OrderID: orderID, StockRestored: restored})
	return nil
}

// CancelOwnOrder lets the owner of a pending order cancel it.
func (s *Service) CancelOwnOrder(ctx context.Context, ac auth.Context, orderID string) (orders.Order, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return orders.Order{}, err
	}

	var restored bool
	var o orders.Order
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		var err error
		if o, err = s.lockOrder(ctx, repo, orderID); err != nil {
			return err
		}
		ok, err := s.owns(ctx, repo, ac, o)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NewForbidden("order belongs to another customer")
		}
		if o.Status != orders.StatusPending {
			return apperr.NewInvalidTransition(string(o.Status), string(orders.StatusCancelled), nil)
		}
		if o.StockCommitted {
			if err := s.restoreStock(ctx, repo, o.ID, o.Items, "order cancelled by owner"); err != nil {
				return err
			}
			o.StockCommitted = false
			restored = true
		}
		o.Status = orders.StatusCancelled
		o.UpdatedAt = s.now()
		if err := repo.UpdateOrder(ctx, &o); err != nil {
			return apperr.Wrap("update order", err)
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.log.Info("order cancelled by owner", zap.String("order_id", o.ID), zap.String("principal", ac.PrincipalID))
	s.events.Emit(ctx, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
		OrderID:       o.ID,
		From:          orders.StatusPending,
		To:            orders.StatusCancelled,
		StockRestored: restored,
	})
	s.refreshStatus(ctx, o)
	return o, nil
}

// recommit takes stock again for a confirmed order that is paid after a late
// failure returned its stock. A shortfall leaves the order uncommitted, and an
// uncommitted order cannot ship.
func (s *Service) recommit(ctx context.Context, repo orders.Repository, o *orders.Order) (bool, error) {
	if o.PaymentStatus != orders.PaymentPaid || o.Status != orders.StatusConfirmed || o.StockCommitted {
		return false, nil
	}
	err := s.commitStock(ctx, repo, o.ID, o.Items, "payment settled after failure")
	if apperr.Is(err, apperr.CodeInsufficientStock) {
		s.log.Warn("stock not recommitted after repayment", zap.String("order_id", o.ID), zap.Error(err))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	o.StockCommitted = true
	return true, nil
}

func (s *Service) paymentChanged(ctx context.Context, o orders.Order, from orders.PaymentStatus, source string, restored, recommitted bool) {
	s.log.Info("payment status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.PaymentStatus)),
		zap.String("source", source),
		zap.Bool("stock_restored", restored),
		zap.Bool("stock_recommitted", recommitted),
	)
	s.events.Emit(ctx, orders.EventPaymentStatusChanged, o.ID, orders.PaymentStatusChangedPayload{
		OrderID:          o.ID,
		From:             from,
		To:               o.PaymentStatus,
		Source:           source,
		StockRestored:    restored,
		StockRecommitted: recommitted,
	})
	s.refreshStatus(ctx, o)
}
