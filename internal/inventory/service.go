package inventory

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/apperr"
	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const (
	AdjustSet      = "set"
	AdjustAdd      = "add"
	AdjustSubtract = "subtract"

	defaultMovementLimit = 100
)

type AdjustRequest struct {
	ProductID   string `json:"product_id"`
	Type        string `json:"adjustment_type"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

type MovementRequest struct {
	ProductID   string              `json:"product_id"`
	Type        orders.MovementType `json:"movement_type"`
	Quantity    int                 `json:"quantity"`
	Reason      string              `json:"reason"`
	Description string              `json:"description"`
	Reference   string              `json:"reference"`
}

// Service exposes manual stock operations to admins.
type Service struct {
	store  orders.Store
	ledger *Ledger
	events orders.Emitter
	log    *zap.Logger
}

func NewService(store orders.Store, ledger *Ledger, events orders.Emitter, log *zap.Logger) *Service {
	if events == nil {
		events = orders.NopEmitter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ledger: ledger, events: events, log: log}
}

// AdjustStock corrects a product's quantity. It always records an "adjustment" movement.
func (s *Service) AdjustStock(ctx context.Context, ac auth.Context, req AdjustRequest) (orders.InventoryMovement, error) {
	if err := ac.RequireAdmin(); err != nil {
		return orders.InventoryMovement{}, err
	}
	if req.ProductID == "" {
		return orders.InventoryMovement{}, apperr.NewValidation("product_id is required", "product_id")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return orders.InventoryMovement{}, apperr.NewValidation("reason is required", "reason")
	}

	var apply func(repo orders.Repository) (orders.InventoryMovement, error)
	switch req.Type {
	case AdjustSet:
		apply = func(repo orders.Repository) (orders.InventoryMovement, error) {
			return s.ledger.AdjustAbsolute(ctx, repo, req.ProductID, req.Quantity, req.Reason, req.Description)
		}
	case AdjustAdd, AdjustSubtract:
		if req.Quantity <= 0 {
			return orders.InventoryMovement{}, apperr.NewValidation("quantity must be positive", "quantity")
		}
		delta := req.Quantity
		if req.Type == AdjustSubtract {
			delta = -delta
		}
		apply = func(repo orders.Repository) (orders.InventoryMovement, error) {
			return s.ledger.ApplyDelta(ctx, repo, Change{
				ProductID:   req.ProductID,
				Delta:       delta,
				Type:        orders.MovementAdjustment,
				Reason:      req.Reason,
				Description: req.Description,
			})
		}
	default:
		return orders.InventoryMovement{}, apperr.NewValidation("adjustment_type must be one of set, add, subtract", "adjustment_type")
	}

	return s.commit(ctx, apply)
}

// RecordMovement applies a typed movement: in and return add stock, out and
// damaged remove it, adjustment sets the absolute quantity.
func (s *Service) RecordMovement(ctx context.Context, ac auth.Context, req MovementRequest) (orders.InventoryMovement, error) {
	if err := ac.RequireAdmin(); err != nil {
		return orders.InventoryMovement{}, err
	}
	if req.ProductID == "" {
		return orders.InventoryMovement{}, apperr.NewValidation("product_id is required", "product_id")
	}
	if !req.Type.Valid() {
		return orders.InventoryMovement{}, apperr.NewValidation("movement_type must be one of in, out, adjustment, damaged, return", "movement_type")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return orders.InventoryMovement{}, apperr.NewValidation("reason is required", "reason")
	}

	if req.Type == orders.MovementAdjustment {
		return s.commit(ctx, func(repo orders.Repository) (orders.InventoryMovement, error) {
			return s.ledger.AdjustAbsolute(ctx, repo, req.ProductID, req.Quantity, req.Reason, req.Description)
		})
	}

	if req.Quantity <= 0 {
		return orders.InventoryMovement{}, apperr.NewValidation("quantity must be positive", "quantity")
	}
	delta := req.Quantity
	if req.Type == orders.MovementOut || req.Type == orders.MovementDamaged {
		delta = -delta
	}
	return s.commit(ctx, func(repo orders.Repository) (orders.InventoryMovement, error) {
		return s.ledger.ApplyDelta(ctx, repo, Change{
			ProductID:   req.ProductID,
			Delta:       delta,
			Type:        req.Type,
			Reason:      req.Reason,
			Description: req.Description,
			Reference:   req.Reference,
		})
	})
}

func (s *Service) ListMovements(ctx context.Context, ac auth.Context, productID string, limit int) ([]orders.InventoryMovement, error) {
	if err := ac.RequireAdmin(); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, apperr.NewValidation("product_id is required", "product_id")
	}
	if limit <= 0 || limit > 500 {
		limit = defaultMovementLimit
	}
	out, err := s.store.ListMovements(ctx, productID, limit)
	if err != nil {
		return nil, apperr.Wrap("list movements", err)
	}
	if out == nil {
		out = []orders.InventoryMovement{}
	}
	return out, nil
}

func (s *Service) commit(ctx context.Context, apply func(orders.Repository) (orders.InventoryMovement, error)) (orders.InventoryMovement, error) {
	var m orders.InventoryMovement
	err := s.store.InTx(ctx, func(repo orders.Repository) error {
		var err error
		m, err = apply(repo)
		return err
	})
	if err != nil {
		return orders.InventoryMovement{}, apperr.Wrap("apply stock movement", err)
	}

	s.log.Info("stock moved",
		zap.String("product_id", m.ProductID),
		zap.String("type", string(m.Type)),
		zap.Int("delta", m.Quantity),
		zap.Int("stock_after", m.StockAfter),
	)
	s.events.Emit(ctx, orders.EventStockMoved, m.ProductID, MovedPayload(m))
	return m, nil
}

func MovedPayload(m orders.InventoryMovement) orders.StockMovedPayload {
	return orders.StockMovedPayload{
		ProductID:   m.ProductID,
		Type:        m.Type,
		Delta:       m.Quantity,
		StockBefore: m.StockBefore,
		StockAfter:  m.StockAfter,
		Reference:   m.Reference,
	}
}
