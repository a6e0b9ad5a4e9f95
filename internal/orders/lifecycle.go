package orders

import (
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
)

// allowedTransitions is the full lifecycle state machine. Cancellation is
// open until processing completes; refunds are granted administratively after
// cancellation or delivery.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:  {enums.OrderStatusRefunded},
	enums.OrderStatusCancelled:  {enums.OrderStatusRefunded},
	enums.OrderStatusRefunded:   {},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// forwardChain is the fulfillment path an operator may fast-forward along.
var forwardChain = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusConfirmed,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
}

// ForwardHops returns the statuses an order passes through when moved
// forward from one fulfillment state to a later one, one entry per hop.
// ok is false when either status is off the fulfillment path or the target
// does not lie ahead of the current state.
func ForwardHops(from, to enums.OrderStatus) ([]enums.OrderStatus, bool) {
	fromIdx, toIdx := -1, -1
	for i, status := range forwardChain {
		if status == from {
			fromIdx = i
		}
		if status == to {
			toIdx = i
		}
	}
	if fromIdx < 0 || toIdx < 0 || toIdx <= fromIdx {
		return nil, false
	}
	return forwardChain[fromIdx+1 : toIdx+1], true
}

// cancellableStatuses lists the states a customer may cancel from.
var cancellableStatuses = map[enums.OrderStatus]struct{}{
	enums.OrderStatusPending:    {},
	enums.OrderStatusConfirmed:  {},
	enums.OrderStatusProcessing: {},
}

// Cancellable reports whether a customer cancel is still permitted.
func Cancellable(status enums.OrderStatus) bool {
	_, ok := cancellableStatuses[status]
	return ok
}
