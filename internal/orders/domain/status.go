// Package domain holds the order state machines and pricing rules. Pure
// logic, no storage.
package domain

import (
	"fmt"

	"inbox_crm_backend/platform/apperr"
)

// FulfillmentStatus is the physical fulfillment state of an order.
type FulfillmentStatus string

// Fulfillment statuses. DELIVERED and CANCELLED are terminal.
const (
	FulfillmentNew       FulfillmentStatus = "NEW"
	FulfillmentConfirmed FulfillmentStatus = "CONFIRMED"
	FulfillmentShipped   FulfillmentStatus = "SHIPPED"
	FulfillmentDelivered FulfillmentStatus = "DELIVERED"
	FulfillmentCancelled FulfillmentStatus = "CANCELLED"
)

// PaymentStatus is the payment state of an order, tracked independently of
// fulfillment.
type PaymentStatus string

// Payment statuses.
const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// fulfillmentGraph lists the allowed forward transitions. Cancellation is
// handled separately because it is reachable from every non-terminal state.
var fulfillmentGraph = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentNew:       {FulfillmentConfirmed, FulfillmentCancelled},
	FulfillmentConfirmed: {FulfillmentShipped, FulfillmentCancelled},
	FulfillmentShipped:   {FulfillmentDelivered, FulfillmentCancelled},
	FulfillmentDelivered: nil,
	FulfillmentCancelled: nil,
}

// ParseFulfillmentStatus validates a raw fulfillment status string.
func ParseFulfillmentStatus(raw string) (FulfillmentStatus, error) {
	s := FulfillmentStatus(raw)
	if _, ok := fulfillmentGraph[s]; !ok {
		return "", apperr.Validation(fmt.Sprintf("unknown fulfillment status %q", raw))
	}
	return s, nil
}

// IsTerminal reports whether no transition may leave this status.
func (s FulfillmentStatus) IsTerminal() bool {
	return s == FulfillmentDelivered || s == FulfillmentCancelled
}

// CanTransitionTo reports whether the fulfillment graph allows moving from s
// to target.
func (s FulfillmentStatus) CanTransitionTo(target FulfillmentStatus) bool {
	for _, allowed := range fulfillmentGraph[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateFulfillmentTransition checks one fulfillment step.
func ValidateFulfillmentTransition(current, target FulfillmentStatus) error {
	if !current.CanTransitionTo(target) {
		return apperr.InvalidTransition(fmt.Sprintf("order fulfillment %q cannot move to %q", current, target))
	}
	return nil
}

var validPaymentStatuses = map[PaymentStatus]bool{
	PaymentUnpaid:   true,
	PaymentPaid:     true,
	PaymentRefunded: true,
}

// ParsePaymentStatus validates a raw payment status string.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(raw)
	if !validPaymentStatuses[s] {
		return "", apperr.Validation(fmt.Sprintf("unknown payment status %q", raw))
	}
	return s, nil
}

// ValidatePaymentTransition checks a payment status set. Payment is recorded
// from external facts rather than walked through a graph, so most sets are
// allowed directly. Two guards apply: REFUNDED is final, and a refund
// requires that a payment actually happened.
func ValidatePaymentTransition(current, target PaymentStatus) error {
	if current == PaymentRefunded {
		return apperr.InvalidState(fmt.Sprintf("order payment is refunded and cannot move to %q", target))
	}
	if target == PaymentRefunded && current != PaymentPaid {
		return apperr.InvalidState(fmt.Sprintf("order payment %q cannot be refunded", current))
	}
	return nil
}

// Item is one order line used for pricing.
type Item struct {
	Description    string
	Quantity       int
	UnitPriceCents int64
}

// ComputeTotalCents sums line totals. Quantities and prices are validated at
// the transport layer; negative values never reach here.
func ComputeTotalCents(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPriceCents
	}
	return total
}
