// Package memstore is an in-process orders.Store on go-memdb. InTx runs on a
// write transaction: go-memdb admits one writer at a time, which gives the same
// no-lost-update guarantee as row locks, and Abort drops everything fn wrote.
// Reads outside a transaction see the last committed snapshot.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const (
	tProducts     = "products"
	tProfiles     = "profiles"
	tCustomers    = "customers"
	tOrders       = "orders"
	tItems        = "order_items"
	tReservations = "reservations"
	tOffers       = "offers"
	tMovements    = "movements"
)

// itemRow keeps request line order: Key is "<order id>/<line>".
type itemRow struct {
	Key     string
	OrderID string
	Item    orders.OrderItem
}

// movementRow orders movements by insertion through Key.
type movementRow struct {
	Key       string
	ProductID string
	Movement  orders.InventoryMovement
}

func idIndex(field string) *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: field}}
}

func fieldIndex(name, field string, lowercase bool) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:         name,
		AllowMissing: true,
		Indexer:      &memdb.StringFieldIndex{Field: field, Lowercase: lowercase},
	}
}

func table(name string, indexes ...*memdb.IndexSchema) *memdb.TableSchema {
	t := &memdb.TableSchema{Name: name, Indexes: map[string]*memdb.IndexSchema{}}
	for _, ix := range indexes {
		t.Indexes[ix.Name] = ix
	}
	return t
}

var schema = &memdb.DBSchema{Tables: map[string]*memdb.TableSchema{
	tProducts:     table(tProducts, idIndex("ID")),
	tProfiles:     table(tProfiles, idIndex("ID")),
	tCustomers:    table(tCustomers, idIndex("ID"), fieldIndex("user", "UserID", false), fieldIndex("email", "Email", true)),
	tOrders:       table(tOrders, idIndex("ID")),
	tItems:        table(tItems, idIndex("Key"), fieldIndex("order", "OrderID", false)),
	tReservations: table(tReservations, idIndex("ID")),
	tOffers:       table(tOffers, idIndex("ID"), fieldIndex("product", "ProductID", false)),
	tMovements:    table(tMovements, idIndex("Key"), fieldIndex("product", "ProductID", false)),
}}

type Store struct {
	*repo
	db  *memdb.MemDB
	seq atomic.Int64

	mu    sync.Mutex
	fails map[string]error
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		panic("memstore: invalid schema: " + err.Error())
	}
	s := &Store{db: db, fails: map[string]error{}}
	s.repo = &repo{s: s}
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(orders.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(&repo{s: s, txn: txn}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// FailNext makes the next call of the named Repository method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[method] = err
}

func (s *Store) takeFailure(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.fails[method]
	if !ok {
		return nil
	}
	delete(s.fails, method)
	return err
}

// put seeds rows outside any transaction. Seeding errors are programming errors.
func (s *Store) put(tableName string, objs ...any) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, obj := range objs {
		if err := txn.Insert(tableName, obj); err != nil {
			panic(fmt.Sprintf("memstore: seed %s: %v", tableName, err))
		}
	}
	txn.Commit()
}

func (s *Store) PutProduct(p orders.Product) { s.put(tProducts, &p) }

func (s *Store) PutProfile(p orders.Profile) { s.put(tProfiles, &p) }

func (s *Store) PutCustomer(c orders.Customer) { s.put(tCustomers, &c) }

func (s *Store) PutReservation(r orders.Reservation) { s.put(tReservations, &r) }

func (s *Store) PutOffer(o orders.Offer) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.put(tOffers, &o)
}

// PutOrder stores the header and, when present, o.Items.
func (s *Store) PutOrder(o orders.Order) {
	items := o.Items
	o.Items = nil
	s.put(tOrders, &o)
	rows := make([]any, 0, len(items))
	for i, it := range items {
		rows = append(rows, &itemRow{Key: fmt.Sprintf("%s/%06d", o.ID, i), OrderID: o.ID, Item: it})
	}
	s.put(tItems, rows...)
}

func (s *Store) count(tableName string) int {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableName, "id")
	if err != nil {
		return 0
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n
}

func (s *Store) CountOrders() int { return s.count(tOrders) }

func (s *Store) CountOrderItems() int { return s.count(tItems) }

func (s *Store) CountCustomers() int { return s.count(tCustomers) }

// repo is the Repository over the transaction of InTx, or over short
// per-call transactions when txn is nil.
type repo struct {
	s   *Store
	txn *memdb.Txn
}

func (r *repo) read(method string, fn func(*memdb.Txn) error) error {
	if err := r.s.takeFailure(method); err != nil {
		return err
	}
	if r.txn != nil {
		return fn(r.txn)
	}
	txn := r.s.db.Txn(false)
	defer txn.Abort()
	return fn(txn)
}

func (r *repo) write(method string, fn func(*memdb.Txn) error) error {
	if err := r.s.takeFailure(method); err != nil {
		return err
	}
	if r.txn != nil {
		return fn(r.txn)
	}
	txn := r.s.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// first returns a copy of the first row matching the index lookup. Stored rows
// are never modified in place.
func first[T any](txn *memdb.Txn, tableName, index string, args ...any) (T, error) {
	var zero T
	raw, err := txn.First(tableName, index, args...)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, orders.ErrNotFound
	}
	return *raw.(*T), nil
}

func collect[T any](it memdb.ResultIterator, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	var out []T
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, *obj.(*T))
	}
	return out, nil
}

func (r *repo) GetProduct(_ context.Context, id string) (p orders.Product, err error) {
	err = r.read("GetProduct", func(txn *memdb.Txn) error {
		p, err = first[orders.Product](txn, tProducts, "id", id)
		return err
	})
	return p, err
}

func (r *repo) LockProduct(ctx context.Context, id string) (orders.Product, error) {
	return r.GetProduct(ctx, id)
}

func (r *repo) AddStock(_ context.Context, productID string, delta int) (after int, err error) {
	err = r.write("AddStock", func(txn *memdb.Txn) error {
		p, err := first[orders.Product](txn, tProducts, "id", productID)
		if err != nil {
			return err
		}
		if p.Stock+delta < 0 {
			return orders.ErrNegativeStock
		}
		p.Stock += delta
		p.UpdatedAt = time.Now().UTC()
		after = p.Stock
		return txn.Insert(tProducts, &p)
	})
	return after, err
}

func (r *repo) InsertMovement(_ context.Context, m *orders.InventoryMovement) error {
	return r.write("InsertMovement", func(txn *memdb.Txn) error {
		return txn.Insert(tMovements, &movementRow{
			Key:       fmt.Sprintf("%012d", r.s.seq.Add(1)),
			ProductID: m.ProductID,
			Movement:  *m,
		})
	})
}

// ListMovements returns the newest movements first.
func (r *repo) ListMovements(_ context.Context, productID string, limit int) (out []orders.InventoryMovement, err error) {
	err = r.read("ListMovements", func(txn *memdb.Txn) error {
		var rows []movementRow
		if productID == "" {
			rows, err = collect[movementRow](txn.GetReverse(tMovements, "id"))
		} else {
			rows, err = collect[movementRow](txn.GetReverse(tMovements, "product", productID))
		}
		for _, row := range rows {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, row.Movement)
		}
		return err
	})
	return out, err
}

func (r *repo) ListActiveOffers(_ context.Context, productIDs []string, userID string) (out []orders.Offer, err error) {
	err = r.read("ListActiveOffers", func(txn *memdb.Txn) error {
		for _, pid := range productIDs {
			offers, err := collect[orders.Offer](txn.Get(tOffers, "product", pid))
			if err != nil {
				return err
			}
			for _, o := range offers {
				if o.Active && (o.UserID == "" || (userID != "" && o.UserID == userID)) {
					out = append(out, o)
				}
			}
		}
		return nil
	})
	return out, err
}

func (r *repo) GetProfile(_ context.Context, userID string) (p orders.Profile, err error) {
	err = r.read("GetProfile", func(txn *memdb.Txn) error {
		p, err = first[orders.Profile](txn, tProfiles, "id", userID)
		return err
	})
	return p, err
}

func (r *repo) GetCustomer(_ context.Context, id string) (c orders.Customer, err error) {
	err = r.read("GetCustomer", func(txn *memdb.Txn) error {
		c, err = first[orders.Customer](txn, tCustomers, "id", id)
		return err
	})
	return c, err
}

func (r *repo) FindCustomerByUserID(_ context.Context, userID string) (c orders.Customer, err error) {
	err = r.read("FindCustomerByUserID", func(txn *memdb.Txn) error {
		if userID == "" {
			return orders.ErrNotFound
		}
		c, err = first[orders.Customer](txn, tCustomers, "user", userID)
		return err
	})
	return c, err
}

// FindCustomerByEmail matches case-insensitively and prefers the oldest customer.
func (r *repo) FindCustomerByEmail(_ context.Context, email string) (c orders.Customer, err error) {
	err = r.read("FindCustomerByEmail", func(txn *memdb.Txn) error {
		email = strings.TrimSpace(email)
		if email == "" {
			return orders.ErrNotFound
		}
		matches, err := collect[orders.Customer](txn.Get(tCustomers, "email", email))
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return orders.ErrNotFound
		}
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
		c = matches[0]
		return nil
	})
	return c, err
}

func (r *repo) LinkCustomerUser(_ context.Context, customerID, userID string) error {
	return r.write("LinkCustomerUser", func(txn *memdb.Txn) error {
		c, err := first[orders.Customer](txn, tCustomers, "id", customerID)
		if err != nil {
			return err
		}
		c.UserID = userID
		c.UpdatedAt = time.Now().UTC()
		return txn.Insert(tCustomers, &c)
	})
}

func (r *repo) InsertCustomer(_ context.Context, c *orders.Customer) error {
	return r.write("InsertCustomer", func(txn *memdb.Txn) error {
		row := *c
		return txn.Insert(tCustomers, &row)
	})
}

func (r *repo) InsertOrder(_ context.Context, o *orders.Order) error {
	return r.write("InsertOrder", func(txn *memdb.Txn) error {
		h := *o
		h.Items = nil
		h.ShippingAddress = slices.Clone(h.ShippingAddress)
		h.BillingAddress = slices.Clone(h.BillingAddress)
		return txn.Insert(tOrders, &h)
	})
}

func (r *repo) InsertOrderItems(_ context.Context, orderID string, items []orders.OrderItem) error {
	return r.write("InsertOrderItems", func(txn *memdb.Txn) error {
		if _, err := first[orders.Order](txn, tOrders, "id", orderID); err != nil {
			return err
		}
		existing, err := collect[itemRow](txn.Get(tItems, "order", orderID))
		if err != nil {
			return err
		}
		for i, it := range items {
			row := &itemRow{Key: fmt.Sprintf("%s/%06d", orderID, len(existing)+i), OrderID: orderID, Item: it}
			if err := txn.Insert(tItems, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) GetOrder(_ context.Context, id string) (o orders.Order, err error) {
	err = r.read("GetOrder", func(txn *memdb.Txn) error {
		o, err = first[orders.Order](txn, tOrders, "id", id)
		return err
	})
	return o, err
}

func (r *repo) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return r.GetOrder(ctx, id)
}

// ListOrderItems returns the items in line order.
func (r *repo) ListOrderItems(_ context.Context, orderID string) (out []orders.OrderItem, err error) {
	err = r.read("ListOrderItems", func(txn *memdb.Txn) error {
		rows, err := collect[itemRow](txn.Get(tItems, "order", orderID))
		sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
		for _, row := range rows {
			out = append(out, row.Item)
		}
		return err
	})
	return out, err
}

func (r *repo) ListOrders(_ context.Context, f orders.OrderFilter) (out []orders.Order, err error) {
	err = r.read("ListOrders", func(txn *memdb.Txn) error {
		all, err := collect[orders.Order](txn.Get(tOrders, "id"))
		if err != nil {
			return err
		}
		for _, o := range all {
			if f.CustomerID != "" && o.CustomerID != f.CustomerID {
				continue
			}
			if f.AssignedUserID != "" && o.AssignedUserID != f.AssignedUserID {
				continue
			}
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			out = append(out, o)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (r *repo) UpdateOrder(_ context.Context, o *orders.Order) error {
	return r.write("UpdateOrder", func(txn *memdb.Txn) error {
		cur, err := first[orders.Order](txn, tOrders, "id", o.ID)
		if err != nil {
			return err
		}
		cur.Status = o.Status
		cur.PaymentStatus = o.PaymentStatus
		cur.PaymentMethod = o.PaymentMethod
		cur.PaymentReference = o.PaymentReference
		cur.TrackingNumber = o.TrackingNumber
		cur.Notes = o.Notes
		cur.StockCommitted = o.StockCommitted
		cur.UpdatedAt = o.UpdatedAt
		return txn.Insert(tOrders, &cur)
	})
}

func (r *repo) DeleteOrderItems(_ context.Context, orderID string) error {
	return r.write("DeleteOrderItems", func(txn *memdb.Txn) error {
		_, err := txn.DeleteAll(tItems, "order", orderID)
		return err
	})
}

func (r *repo) DeleteOrder(_ context.Context, orderID string) error {
	return r.write("DeleteOrder", func(txn *memdb.Txn) error {
		o, err := first[orders.Order](txn, tOrders, "id", orderID)
		if err != nil {
			return err
		}
		return txn.Delete(tOrders, &o)
	})
}

func (r *repo) CountOrdersByState(_ context.Context) (c orders.OrderCounts, err error) {
	err = r.read("CountOrdersByState", func(txn *memdb.Txn) error {
		all, err := collect[orders.Order](txn.Get(tOrders, "id"))
		for _, o := range all {
			c.Total++
			switch o.Status {
			case orders.StatusPending:
				c.Pending++
			case orders.StatusDelivered:
				c.Delivered++
			case orders.StatusCancelled:
				c.Cancelled++
			}
			if o.PaymentStatus == orders.PaymentPaid {
				c.Paid++
			}
		}
		return err
	})
	return c, err
}

func (r *repo) SalesByDay(_ context.Context, from time.Time) (out []orders.DaySales, err error) {
	err = r.read("SalesByDay", func(txn *memdb.Txn) error {
		all, err := collect[orders.Order](txn.Get(tOrders, "id"))
		if err != nil {
			return err
		}
		byDay := map[string]decimal.Decimal{}
		for _, o := range all {
			if o.CreatedAt.Before(from) {
				continue
			}
			day := o.CreatedAt.UTC().Format(time.DateOnly)
			byDay[day] = byDay[day].Add(o.TotalAmount)
		}
		for day, sales := range byDay {
			out = append(out, orders.DaySales{Date: day, Sales: sales})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		return nil
	})
	return out, err
}

func (r *repo) InsertReservation(_ context.Context, res *orders.Reservation) error {
	return r.write("InsertReservation", func(txn *memdb.Txn) error {
		row := *res
		return txn.Insert(tReservations, &row)
	})
}

func (r *repo) GetReservation(_ context.Context, id string) (res orders.Reservation, err error) {
	err = r.read("GetReservation", func(txn *memdb.Txn) error {
		res, err = first[orders.Reservation](txn, tReservations, "id", id)
		return err
	})
	return res, err
}

func (r *repo) LockReservation(ctx context.Context, id string) (orders.Reservation, error) {
	return r.GetReservation(ctx, id)
}

func (r *repo) TransitionReservation(_ context.Context, id string, from, to orders.ReservationStatus, orderID string, at time.Time) (changed bool, err error) {
	err = r.write("TransitionReservation", func(txn *memdb.Txn) error {
		res, err := first[orders.Reservation](txn, tReservations, "id", id)
		if errors.Is(err, orders.ErrNotFound) || (err == nil && res.Status != from) {
			return nil
		}
		if err != nil {
			return err
		}
		res.Status = to
		if orderID != "" {
			res.OrderID = orderID
		}
		res.UpdatedAt = at
		changed = true
		return txn.Insert(tReservations, &res)
	})
	return changed, err
}

func (r *repo) ExpireReservations(_ context.Context, now time.Time) (n int, err error) {
	err = r.write("ExpireReservations", func(txn *memdb.Txn) error {
		all, err := collect[orders.Reservation](txn.Get(tReservations, "id"))
		if err != nil {
			return err
		}
		for _, res := range all {
			if !res.Expired(now) {
				continue
			}
			res.Status = orders.ReservationCancelled
			res.UpdatedAt = now
			if err := txn.Insert(tReservations, &res); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (r *repo) ListReservations(_ context.Context, f orders.ReservationFilter) (out []orders.Reservation, err error) {
	err = r.read("ListReservations", func(txn *memdb.Txn) error {
		all, err := collect[orders.Reservation](txn.Get(tReservations, "id"))
		for _, res := range all {
			if f.UserID != "" && res.UserID != f.UserID {
				continue
			}
			if f.Status != "" && res.Status != f.Status {
				continue
			}
			out = append(out, res)
		}
		return err
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (r *repo) CountReservationsByState(_ context.Context) (c orders.ReservationCounts, err error) {
	err = r.read("CountReservationsByState", func(txn *memdb.Txn) error {
		all, err := collect[orders.Reservation](txn.Get(tReservations, "id"))
		for _, res := range all {
			switch res.Status {
			case orders.ReservationPending:
				c.Pending++
			case orders.ReservationCancelled:
				c.Cancelled++
			}
		}
		return err
	})
	return c, err
}
