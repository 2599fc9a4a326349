package orders

const (
	TopicOrders               = "storefront.orders"
	TopicPayments             = "storefront.payments"
	TopicInventory            = "storefront.inventory"
	TopicReservations         = "storefront.reservations"
	TopicPaymentNotifications = "storefront.payment.notifications"
)

func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderCreated, EventOrderStatusChanged, EventOrderDeleted:
		return TopicOrders
	case EventPaymentStatusChanged:
		return TopicPayments
	case EventStockMoved:
		return TopicInventory
	case EventReservationCreated, EventReservationConverted, EventReservationCancelled:
		return TopicReservations
	case EventPaymentNotificationIn:
		return TopicPaymentNotifications
	}
	return TopicOrders
}

// PartitionKey keeps every event of one aggregate on one partition, in order.
func PartitionKey(id string) []byte { return []byte(id) }
