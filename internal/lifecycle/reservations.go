package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const noEmail = "no-email@local"

type ReservationRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
	// UserID lets an admin reserve on behalf of someone; ignored for everyone else.
	UserID string `json:"user_id,omitempty"`
}

// CreateReservation places a soft hold. Stock is not touched.
func (s *Service) CreateReservation(ctx context.Context, ac auth.Context, req ReservationRequest) (orders.Reservation, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return orders.Reservation{}, err
	}
	if req.ProductID == "" {
		return orders.Reservation{}, apperr.NewValidation("product_id is required", "product_id")
	}
	if req.Quantity <= 0 {
		return orders.Reservation{}, apperr.NewValidation("quantity must be positive", "quantity")
	}
	p, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return orders.Reservation{}, notFoundOr(err, "product", req.ProductID, "load product")
	}
	if !p.Active {
		return orders.Reservation{}, apperr.NewValidation("product "+p.Name+" is not available", "product_id")
	}

	userID := ac.PrincipalID
	if ac.IsAdmin() && req.UserID != "" {
		userID = req.UserID
	}
	now := s.now()
	r := orders.Reservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Status:    orders.ReservationPending,
		Notes:     req.Notes,
		ExpiresAt: now.Add(s.reservationTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertReservation(ctx, &r); err != nil {
		return orders.Reservation{}, apperr.Wrap("create reservation", err)
	}

	s.reservationChanged(ctx, orders.EventReservationCreated, r)
	return r, nil
}

// ListReservations is the admin view. Expired pending reservations are
// cancelled before the list is read.
func (s *Service) ListReservations(ctx context.Context, ac auth.Context, f orders.ReservationFilter) ([]orders.Reservation, error) {
	if err := ac.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.listReservations(ctx, f)
}

func (s *Service) ListMyReservations(ctx context.Context, ac auth.Context, f orders.ReservationFilter) ([]orders.Reservation, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return nil, err
	}
	f.UserID = ac.PrincipalID
	return s.listReservations(ctx, f)
}

func (s *Service) listReservations(ctx context.Context, f orders.ReservationFilter) ([]orders.Reservation, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.NewValidation("invalid reservation status", "status")
	}
	if _, err := s.ExpireStale(ctx); err != nil {
		return nil, err
	}
	f.Limit = clampLimit(f.Limit)
	out, err := s.store.ListReservations(ctx, f)
	if err != nil {
		return nil, apperr.Wrap("list reservations", err)
	}
	if out == nil {
		out = []orders.Reservation{}
	}
	return out, nil
}

// ExpireStale cancels every pending reservation past its expiry. It backs both
// the lazy sweep on reads and the optional periodic sweeper.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	n, err := s.store.ExpireReservations(ctx, s.now())
	if err != nil {
		return 0, apperr.Wrap("expire reservations", err)
	}
	if n > 0 {
		s.log.Info("expired reservations cancelled", zap.Int("count", n))
	}
	return n, nil
}

// ApproveReservation turns a pending reservation into a confirmed, paid order
// and takes the stock. Everything happens in one transaction.
func (s *Service) ApproveReservation(ctx context.Context, ac auth.Context, reservationID string) (orders.Order, error) {
	if err := ac.RequireAdmin(); err != nil {
		return orders.Order{}, err
	}
	return s.reservationToOrder(ctx, reservationID, true)
}

// ConvertReservation turns a pending reservation into a pending order. Stock is
// taken later, when the order is confirmed.
func (s *Service) ConvertReservation(ctx context.Context, ac auth.Context, reservationID string) (orders.Order, error) {
	if err := ac.RequireAdmin(); err != nil {
		return orders.Order{}, err
	}
	return s.reservationToOrder(ctx, reservationID, false)
}

func (s *Service) CancelReservation(ctx context.Context, ac auth.Context, reservationID string) (orders.Reservation, error) {
	if err := ac.RequireAdmin(); err != nil {
		return orders.Reservation{}, err
	}

	if _, err := s.ExpireStale(ctx); err != nil {
		return orders.Reservation{}, err
	}
	var r orders.Reservation
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		var err error
		if r, err = s.lockPendingReservation(ctx, repo, reservationID, orders.ReservationCancelled); err != nil {
			return err
		}
		now := s.now()
		if _, err := repo.TransitionReservation(ctx, r.ID, orders.ReservationPending, orders.ReservationCancelled, "", now); err != nil {
			return apperr.Wrap("cancel reservation", err)
		}
		r.Status, r.UpdatedAt = orders.ReservationCancelled, now
		return nil
	})
	if err != nil {
		return orders.Reservation{}, err
	}

	s.reservationChanged(ctx, orders.EventReservationCancelled, r)
	return r, nil
}

func (s *Service) reservationToOrder(ctx context.Context, reservationID string, approve bool) (orders.Order, error) {
	if _, err := s.ExpireStale(ctx); err != nil {
		return orders.Order{}, err
	}
	var (
		o orders.Order
		r orders.Reservation
	)
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		var err error
		if r, err = s.lockPendingReservation(ctx, repo, reservationID, orders.ReservationConverted); err != nil {
			return err
		}
		customer, err := s.resolveCustomer(ctx, repo, r.UserID)
		if err != nil {
			return err
		}

		p, err := repo.LockProduct(ctx, r.ProductID)
		if err != nil {
			return notFoundOr(err, "product", r.ProductID, "lock product")
		}
		if approve && p.Stock < r.Quantity {
			return apperr.NewInsufficientStock(p.Name, p.Stock, r.Quantity)
		}
		offers, err := repo.ListActiveOffers(ctx, []string{p.ID}, r.UserID)
		if err != nil {
			return apperr.Wrap("load offers", err)
		}

		now := s.now()
		o = orders.Order{
			ID:            uuid.NewString(),
			CustomerID:    customer.ID,
			Status:        orders.StatusPending,
			PaymentStatus: orders.PaymentPending,
			Notes:         "Created from reservation " + r.ID,
			Source:        orders.SourceAdmin,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		o.Items = []orders.OrderItem{{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    r.Quantity,
			UnitPrice:   orders.DiscountedPrice(p.Price, orders.BestDiscount(offers, p.ID, now)),
		}}
		o.Recompute()

		if approve {
			o.Status = orders.StatusConfirmed
			o.PaymentStatus = orders.PaymentPaid
			o.Notes = "Approved from reservation " + r.ID
			if err := s.commitStock(ctx, repo, o.ID, o.Items, "reservation approved"); err != nil {
				return err
			}
			o.StockCommitted = true
		}

		if err := repo.InsertOrder(ctx, &o); err != nil {
			return apperr.Wrap("create order", err)
		}
		if err := repo.InsertOrderItems(ctx, o.ID, o.Items); err != nil {
			return apperr.Wrap("create order items", err)
		}
		changed, err := repo.TransitionReservation(ctx, r.ID, orders.ReservationPending, orders.ReservationConverted, o.ID, now)
		if err != nil {
			return apperr.Wrap("convert reservation", err)
		}
		if !changed {
			return apperr.NewInvalidTransition(string(r.Status), string(orders.ReservationConverted), nil)
		}
		r.Status, r.OrderID, r.UpdatedAt = orders.ReservationConverted, o.ID, now
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	policy := orders.StockDeferred
	if approve {
		policy = orders.StockImmediate
	}
	s.afterCreate(ctx, o, policy)
	s.reservationChanged(ctx, orders.EventReservationConverted, r)
	return o, nil
}

// lockPendingReservation requires the reservation to be pending and unexpired.
// Callers sweep first, so an expired hold is normally already cancelled here.
func (s *Service) lockPendingReservation(ctx context.Context, repo orders.Repository, id string, to orders.ReservationStatus) (orders.Reservation, error) {
	r, err := repo.LockReservation(ctx, id)
	if err != nil {
		return orders.Reservation{}, notFoundOr(err, "reservation", id, "lock reservation")
	}
	if r.Expired(s.now()) {
		return orders.Reservation{}, apperr.NewInvalidTransition(string(orders.ReservationCancelled), string(to), nil)
	}
	if r.Status != orders.ReservationPending {
		return orders.Reservation{}, apperr.NewInvalidTransition(string(r.Status), string(to), nil)
	}
	return r, nil
}

// resolveCustomer finds the customer linked to userID, links an unlinked
// customer with the same email, or creates one from the user's profile.
func (s *Service) resolveCustomer(ctx context.Context, repo orders.Repository, userID string) (orders.Customer, error) {
	c, err := repo.FindCustomerByUserID(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, orders.ErrNotFound) {
		return orders.Customer{}, apperr.Wrap("find customer", err)
	}

	profile, err := repo.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, orders.ErrNotFound) {
		return orders.Customer{}, apperr.Wrap("load profile", err)
	}

	if email := strings.TrimSpace(profile.Email); email != "" {
		c, err := repo.FindCustomerByEmail(ctx, email)
		switch {
		case err == nil:
			if err := repo.LinkCustomerUser(ctx, c.ID, userID); err != nil {
				return orders.Customer{}, apperr.Wrap("link customer", err)
			}
			c.UserID = userID
			s.log.Info("linked existing customer to user", zap.String("customer_id", c.ID), zap.String("user_id", userID))
			return c, nil
		case !errors.Is(err, orders.ErrNotFound):
			return orders.Customer{}, apperr.Wrap("find customer by email", err)
		}
	}

	now := s.now()
	c = orders.Customer{
		ID:        uuid.NewString(),
		UserID:    userID,
		FirstName: fallback(profile.FirstName, "Customer"),
		LastName:  fallback(profile.LastName, "N/A"),
		Email:     fallback(profile.Email, noEmail),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.InsertCustomer(ctx, &c); err != nil {
		return orders.Customer{}, apperr.Wrap("create customer", err)
	}
	return c, nil
}

func (s *Service) reservationChanged(ctx context.Context, eventType string, r orders.Reservation) {
	s.log.Info("reservation "+string(r.Status),
		zap.String("reservation_id", r.ID),
		zap.String("user_id", r.UserID),
		zap.String("product_id", r.ProductID),
		zap.Int("quantity", r.Quantity),
	)
	s.events.Emit(ctx, eventType, r.ID, orders.ReservationPayload{
		ReservationID: r.ID,
		UserID:        r.UserID,
		ProductID:     r.ProductID,
		Quantity:      r.Quantity,
		Status:        r.Status,
		OrderID:       r.OrderID,
	})
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
