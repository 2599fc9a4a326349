package orders

import "slices"

// Status is the fulfillment status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

func CanTransition(from, to Status) bool {
	return slices.Contains(validNext[from], to)
}

func AllowedNext(from Status) []string {
	return toStrings(validNext[from])
}

// PaymentStatus moves independently of Status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var validPaymentNext = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentPaid:     {PaymentRefunded},
	PaymentFailed:   {PaymentPending, PaymentPaid},
	PaymentRefunded: {},
}

func (s PaymentStatus) Valid() bool {
	_, ok := validPaymentNext[s]
	return ok
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(validPaymentNext[from], to)
}

func AllowedPaymentNext(from PaymentStatus) []string {
	return toStrings(validPaymentNext[from])
}

// CanApplyGatewayPayment is the payment table plus paid -> failed, which only the
// gateway can report (a chargeback or a late rejection).
func CanApplyGatewayPayment(from, to PaymentStatus) bool {
	return CanTransitionPayment(from, to) || (from == PaymentPaid && to == PaymentFailed)
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
