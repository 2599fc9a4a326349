package orders

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNegativeStock = errors.New("stock would become negative")
)

type OrderFilter struct {
	CustomerID     string
	AssignedUserID string
	Status         Status
	Limit          int
}

type ReservationFilter struct {
	UserID string
	Status ReservationStatus
	Limit  int
}

// Repository is the storage surface of the order lifecycle. Implementations return
// ErrNotFound for missing rows.
type Repository interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	// LockProduct reads the product and holds its row until the transaction ends.
	LockProduct(ctx context.Context, id string) (Product, error)
	// AddStock atomically adds delta and returns the new quantity. It returns
	// ErrNegativeStock, without writing, when the result would be below zero.
	AddStock(ctx context.Context, productID string, delta int) (int, error)
	InsertMovement(ctx context.Context, m *InventoryMovement) error
	ListMovements(ctx context.Context, productID string, limit int) ([]InventoryMovement, error)

	// ListActiveOffers returns active global offers for the products plus active
	// user offers for userID. Validity windows are checked by the caller.
	ListActiveOffers(ctx context.Context, productIDs []string, userID string) ([]Offer, error)

	GetProfile(ctx context.Context, userID string) (Profile, error)
	GetCustomer(ctx context.Context, id string) (Customer, error)
	FindCustomerByUserID(ctx context.Context, userID string) (Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (Customer, error)
	LinkCustomerUser(ctx context.Context, customerID, userID string) error
	InsertCustomer(ctx context.Context, c *Customer) error

	InsertOrder(ctx context.Context, o *Order) error
	InsertOrderItems(ctx context.Context, orderID string, items []OrderItem) error
	GetOrder(ctx context.Context, id string) (Order, error)
	LockOrder(ctx context.Context, id string) (Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	// UpdateOrder persists the mutable fields: statuses, payment method and
	// reference, tracking number, notes, stock_committed and updated_at.
	UpdateOrder(ctx context.Context, o *Order) error
	DeleteOrderItems(ctx context.Context, orderID string) error
	DeleteOrder(ctx context.Context, orderID string) error
	CountOrdersByState(ctx context.Context) (OrderCounts, error)
	// SalesByDay sums total_amount per UTC day for orders created at or after
	// from. Days without orders are omitted.
	SalesByDay(ctx context.Context, from time.Time) ([]DaySales, error)

	InsertReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	LockReservation(ctx context.Context, id string) (Reservation, error)
	// TransitionReservation moves a reservation from one status to another only if it is
	// still in from. It reports whether a row changed.
	TransitionReservation(ctx context.Context, id string, from, to ReservationStatus, orderID string, at time.Time) (bool, error)
	// ExpireReservations cancels pending reservations whose expires_at is not after now.
	ExpireReservations(ctx context.Context, now time.Time) (int, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]Reservation, error)
	CountReservationsByState(ctx context.Context) (ReservationCounts, error)
}

// Store runs fn inside a single storage transaction: if fn returns an error
// nothing fn wrote is kept.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}
