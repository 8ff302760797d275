package models

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusCreated       OrderStatus = "CREATED"
	OrderStatusPaymentSent   OrderStatus = "PAYMENT_SENT"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusFailed        OrderStatus = "FAILED"
	OrderStatusExpired       OrderStatus = "EXPIRED"
	OrderStatusRefundPending OrderStatus = "REFUND_PENDING"
	OrderStatusRefunded      OrderStatus = "REFUNDED"
)

// AllOrderStatuses lists every known state in declaration order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusPaymentSent,
	OrderStatusPaid,
	OrderStatusFailed,
	OrderStatusExpired,
	OrderStatusRefundPending,
	OrderStatusRefunded,
}

// orderTransitions holds the allowed outgoing edges per state. Self transitions
// are always allowed and are not listed here.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:       {OrderStatusPaymentSent, OrderStatusFailed, OrderStatusExpired},
	OrderStatusPaymentSent:   {OrderStatusPaid, OrderStatusFailed, OrderStatusExpired},
	OrderStatusPaid:          {OrderStatusRefundPending, OrderStatusRefunded},
	OrderStatusFailed:        {OrderStatusPaymentSent},
	OrderStatusExpired:       {OrderStatusPaymentSent},
	OrderStatusRefundPending: {OrderStatusRefunded},
	OrderStatusRefunded:      {},
}

// CanTransition reports whether an order in state from may move to state to.
func CanTransition(from, to OrderStatus) bool {
	if !to.Valid() || !from.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known state.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether s accepts no further payment requests.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusExpired || s == OrderStatusRefunded
}

func (s OrderStatus) String() string {
	return string(s)
}
