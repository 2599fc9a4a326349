package redisx

import "time"

const (
	// Payment notification dedup: dedup:payment:{payment_id}:{external_status}
	KeyPaymentDedup = "dedup:payment:%s"

	// Cached status pair: order_status:{order_id} -> StatusView JSON
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
