package lifecycle

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const paymentMethodGateway = "mercadopago"

type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	Items           []LineItem         `json:"order_items"`
	TaxAmount       decimal.Decimal    `json:"tax_amount"`
	ShippingAmount  decimal.Decimal    `json:"shipping_amount"`
	ShippingAddress json.RawMessage    `json:"shipping_address,omitempty"`
	BillingAddress  json.RawMessage    `json:"billing_address,omitempty"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	StockPolicy     orders.StockPolicy `json:"stock_policy,omitempty"`
}

type CheckoutResult struct {
	Order  orders.Order   `json:"order"`
	Intent gateway.Intent `json:"payment"`
}

func (r CreateOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return apperr.NewValidation("at least one order item is required", "order_items")
	}
	for _, it := range r.Items {
		if it.ProductID == "" {
			return apperr.NewValidation("every item needs a product_id", "order_items.product_id")
		}
		if it.Quantity <= 0 {
			return apperr.NewValidation("quantity must be positive", "order_items.quantity")
		}
	}
	if r.TaxAmount.IsNegative() {
		return apperr.NewValidation("tax_amount cannot be negative", "tax_amount")
	}
	if r.ShippingAmount.IsNegative() {
		return apperr.NewValidation("shipping_amount cannot be negative", "shipping_amount")
	}
	return nil
}

func sourceFor(role auth.Role) orders.Source {
	switch role {
	case auth.RoleAdmin:
		return orders.SourceAdmin
	case auth.RoleUser:
		return orders.SourceUser
	}
	return orders.SourceCustomer
}

// CreateOrder places a pending order priced from current product prices and
// the best applicable offer. Admin orders default to the immediate stock
// policy; everyone else gets deferred and may not ask for immediate.
func (s *Service) CreateOrder(ctx context.Context, ac auth.Context, req CreateOrderRequest) (orders.Order, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return orders.Order{}, err
	}
	if err := req.validate(); err != nil {
		return orders.Order{}, err
	}

	policy := req.StockPolicy
	if policy == "" {
		policy = orders.StockDeferred
		if ac.IsAdmin() {
			policy = orders.StockImmediate
		}
	}
	if !policy.Valid() {
		return orders.Order{}, apperr.NewValidation("stock_policy must be deferred or immediate", "stock_policy")
	}
	if policy == orders.StockImmediate && !ac.IsAdmin() {
		return orders.Order{}, apperr.NewForbidden("only admins can place orders that commit stock immediately")
	}

	o, err := s.placeOrder(ctx, ac, req, policy)
	if err != nil {
		return orders.Order{}, err
	}
	s.afterCreate(ctx, o, policy)
	return o, nil
}

// Checkout places a deferred order for the caller and opens a payment intent for it.
// When the gateway fails the order stays pending and the intent can be retried.
func (s *Service) Checkout(ctx context.Context, ac auth.Context, req CreateOrderRequest) (CheckoutResult, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return CheckoutResult{}, err
	}
	if ac.Role != auth.RoleCustomer && ac.Role != auth.RoleUser {
		return CheckoutResult{}, apperr.NewForbidden("only customers or users can check out")
	}
	if err := req.validate(); err != nil {
		return CheckoutResult{}, err
	}
	req.PaymentMethod = paymentMethodGateway
	if len(req.BillingAddress) == 0 {
		req.BillingAddress = req.ShippingAddress
	}

	o, err := s.placeOrder(ctx, ac, req, orders.StockDeferred)
	if err != nil {
		return CheckoutResult{}, err
	}
	s.afterCreate(ctx, o, orders.StockDeferred)

	intent, o, err := s.openIntent(ctx, o)
	if err != nil {
		return CheckoutResult{Order: o}, err
	}
	return CheckoutResult{Order: o, Intent: intent}, nil
}

// CreatePaymentIntent (re)opens a payment intent for an order awaiting payment.
func (s *Service) CreatePaymentIntent(ctx context.Context, ac auth.Context, orderID string) (gateway.Intent, error) {
	if err := ac.RequireAuthenticated(); err != nil {
		return gateway.Intent{}, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return gateway.Intent{}, notFoundOr(err, "order", orderID, "load order")
	}
	ok, err := s.owns(ctx, s.store, ac, o)
	if err != nil {
		return gateway.Intent{}, err
	}
	if !ok {
		return gateway.Intent{}, apperr.NewForbidden("order belongs to another customer")
	}
	if o.Status == orders.StatusCancelled || (o.PaymentStatus != orders.PaymentPending && o.PaymentStatus != orders.PaymentFailed) {
		return gateway.Intent{}, apperr.New(apperr.CodeInvalidTransition, "order does not accept payments",
			"Status: "+string(o.Status)+", Payment status: "+string(o.PaymentStatus))
	}
	if o.Items, err = s.store.ListOrderItems(ctx, orderID); err != nil {
		return gateway.Intent{}, apperr.Wrap("load order items", err)
	}

	intent, _, err := s.openIntent(ctx, o)
	return intent, err
}

func (s *Service) placeOrder(ctx context.Context, ac auth.Context, req CreateOrderRequest, policy orders.StockPolicy) (orders.Order, error) {
	now := s.now()
	o := orders.Order{
		ID:              uuid.NewString(),
		Status:          orders.StatusPending,
		PaymentStatus:   orders.PaymentPending,
		TaxAmount:       req.TaxAmount,
		ShippingAmount:  req.ShippingAmount,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Notes:           req.Notes,
		Source:          sourceFor(ac.Role),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if o.Source == orders.SourceUser {
		o.AssignedUserID = ac.PrincipalID
	}

	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		customer, err := s.orderCustomer(ctx, repo, ac, req.CustomerID)
		if err != nil {
			return err
		}
		o.CustomerID = customer.ID

		lines := make([]orders.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, orders.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		ids, qty := orders.Quantities(lines)
		sort.Strings(ids)

		products := make(map[string]orders.Product, len(ids))
		for _, id := range ids {
			var p orders.Product
			if policy == orders.StockImmediate {
				p, err = repo.LockProduct(ctx, id)
			} else {
				p, err = repo.GetProduct(ctx, id)
			}
			if err != nil {
				return notFoundOr(err, "product", id, "load product")
			}
			if !p.Active {
				return apperr.NewValidation("product "+p.Name+" is not available", "order_items.product_id")
			}
			if p.Stock < qty[id] {
				return apperr.NewInsufficientStock(p.Name, p.Stock, qty[id])
			}
			products[id] = p
		}

		pricingUser := customer.UserID
		if o.Source == orders.SourceUser {
			pricingUser = o.AssignedUserID
		}
		offers, err := repo.ListActiveOffers(ctx, ids, pricingUser)
		if err != nil {
			return apperr.Wrap("load offers", err)
		}

		for _, line := range lines {
			p := products[line.ProductID]
			o.Items = append(o.Items, orders.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     o.ID,
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				UnitPrice:   orders.DiscountedPrice(p.Price, orders.BestDiscount(offers, p.ID, now)),
			})
		}
		o.Recompute()

		if policy == orders.StockImmediate {
			if err := s.commitStock(ctx, repo, o.ID, o.Items, "order placed"); err != nil {
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
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// orderCustomer resolves the customer an order is placed for. Customers may
// only order for themselves and may omit customer_id.
func (s *Service) orderCustomer(ctx context.Context, repo orders.Repository, ac auth.Context, customerID string) (orders.Customer, error) {
	if ac.Role == auth.RoleCustomer {
		own, err := repo.FindCustomerByUserID(ctx, ac.PrincipalID)
		if err != nil {
			return orders.Customer{}, notFoundOr(err, "customer profile", ac.PrincipalID, "load customer")
		}
		if customerID != "" && customerID != own.ID {
			return orders.Customer{}, apperr.NewForbidden("customers can only order for themselves")
		}
		customerID = own.ID
	}
	if customerID == "" {
		return orders.Customer{}, apperr.NewValidation("customer_id is required", "customer_id")
	}

	c, err := repo.GetCustomer(ctx, customerID)
	if err != nil {
		return orders.Customer{}, notFoundOr(err, "customer", customerID, "load customer")
	}
	if !c.Active {
		return orders.Customer{}, apperr.NewValidation("customer is inactive", "customer_id")
	}
	return c, nil
}

func (s *Service) afterCreate(ctx context.Context, o orders.Order, policy orders.StockPolicy) {
	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("source", string(o.Source)),
		zap.String("stock_policy", string(policy)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)
	s.events.Emit(ctx, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Source:      o.Source,
		StockPolicy: policy,
		Items:       itemQtys(o.Items),
		TotalAmount: o.TotalAmount.StringFixed(2),
	})
	s.refreshStatus(ctx, o)
}

// openIntent asks the gateway for a payment intent within paymentTimeout and
// stores its id on the order.
func (s *Service) openIntent(ctx context.Context, o orders.Order) (gateway.Intent, orders.Order, error) {
	req := gateway.IntentRequest{OrderID: o.ID, CustomerID: o.CustomerID}
	for _, it := range o.Items {
		req.Items = append(req.Items, gateway.Item{
			ProductID: it.ProductID,
			Title:     it.ProductName,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	if c, err := s.store.GetCustomer(ctx, o.CustomerID); err == nil {
		req.Payer = gateway.Payer{Name: strings.TrimSpace(c.FirstName + " " + c.LastName), Email: c.Email}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	intent, err := s.payments.CreatePaymentIntent(callCtx, req)
	cancel()
	if err != nil {
		s.log.Warn("payment intent not created", zap.String("order_id", o.ID), zap.Error(err))
		return gateway.Intent{}, o, apperr.New(apperr.CodeInternal, "payment intent not created", "Order: "+o.ID)
	}

	err = s.store.InTx(ctx, func(repo orders.Repository) error {
		cur, err := repo.LockOrder(ctx, o.ID)
		if err != nil {
			return notFoundOr(err, "order", o.ID, "lock order")
		}
		cur.PaymentReference = intent.ID
		cur.PaymentMethod = paymentMethodGateway
		cur.UpdatedAt = s.now()
		if err := repo.UpdateOrder(ctx, &cur); err != nil {
			return apperr.Wrap("store payment reference", err)
		}
		o.PaymentReference, o.PaymentMethod, o.UpdatedAt = cur.PaymentReference, cur.PaymentMethod, cur.UpdatedAt
		return nil
	})
	if err != nil {
		return gateway.Intent{}, o, err
	}
	return intent, o, nil
}
