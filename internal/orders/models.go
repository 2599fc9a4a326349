package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock_quantity"`
	Active    bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Profile is the identity provider's view of a principal.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Active    bool   `json:"is_active"`
}

type Customer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Source string

const (
	SourceCustomer Source = "customer"
	SourceUser     Source = "user"
	SourceAdmin    Source = "admin"
)

// StockPolicy decides when an order consumes inventory.
type StockPolicy string

const (
	StockDeferred  StockPolicy = "deferred"  // consumed on pending -> confirmed
	StockImmediate StockPolicy = "immediate" // consumed at creation
)

func (p StockPolicy) Valid() bool {
	return p == StockDeferred || p == StockImmediate
}

type Order struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customer_id"`
	Status           Status          `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	ShippingAmount   decimal.Decimal `json:"shipping_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	ShippingAddress  json.RawMessage `json:"shipping_address,omitempty"`
	BillingAddress   json.RawMessage `json:"billing_address,omitempty"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	TrackingNumber   string          `json:"tracking_number,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Source           Source          `json:"order_source"`
	AssignedUserID   string          `json:"assigned_user_id,omitempty"`
	StockCommitted   bool            `json:"stock_committed"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Items            []OrderItem     `json:"items,omitempty"`
}

// OrderItem prices are snapshots taken when the order is placed.
type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
	MovementDamaged    MovementType = "damaged"
	MovementReturn     MovementType = "return"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementDamaged, MovementReturn:
		return true
	}
	return false
}

// InventoryMovement is append-only. Quantity is the signed delta applied to the stock.
type InventoryMovement struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"product_id"`
	Type        MovementType `json:"movement_type"`
	Quantity    int          `json:"quantity"`
	StockBefore int          `json:"stock_before"`
	StockAfter  int          `json:"stock_after"`
	Reason      string       `json:"reason"`
	Description string       `json:"description,omitempty"`
	Reference   string       `json:"reference,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConverted ReservationStatus = "converted"
	ReservationCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) Valid() bool {
	return s == ReservationPending || s == ReservationConverted || s == ReservationCancelled
}

type Reservation struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	Notes     string            `json:"notes,omitempty"`
	OrderID   string            `json:"order_id,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationPending && !r.ExpiresAt.After(now)
}

// Offer is a percentage discount on a product. An empty UserID makes it global;
// otherwise it is a user offer scoped to that user.
type Offer struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	UserID          string          `json:"user_id,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Active          bool            `json:"is_active"`
	ValidFrom       *time.Time      `json:"valid_from,omitempty"`
	ValidTo         *time.Time      `json:"valid_to,omitempty"`
}

// OrderCounts are the dashboard tallies over all orders.
type OrderCounts struct {
	Total     int
	Pending   int
	Delivered int
	Cancelled int
	Paid      int
}

type ReservationCounts struct {
	Pending   int
	Cancelled int
}

// DaySales is the order total of one UTC calendar day, keyed YYYY-MM-DD.
type DaySales struct {
	Date  string          `json:"date"`
	Sales decimal.Decimal `json:"sales"`
}
