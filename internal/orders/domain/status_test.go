package domain

import (
	"testing"

	"inbox_crm_backend/platform/apperr"
)

func TestParseFulfillmentStatus(t *testing.T) {
	for _, raw := range []string{"NEW", "CONFIRMED", "SHIPPED", "DELIVERED", "CANCELLED"} {
		if _, err := ParseFulfillmentStatus(raw); err != nil {
			t.Errorf("ParseFulfillmentStatus(%q): unexpected error %v", raw, err)
		}
	}
	for _, raw := range []string{"", "new", "RETURNED", "PAID"} {
		if _, err := ParseFulfillmentStatus(raw); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("ParseFulfillmentStatus(%q): expected validation error, got %v", raw, err)
		}
	}
}

func TestFulfillmentGraph(t *testing.T) {
	tests := []struct {
		from   FulfillmentStatus
		to     FulfillmentStatus
		wantOK bool
	}{
		{FulfillmentNew, FulfillmentConfirmed, true},
		{FulfillmentNew, FulfillmentCancelled, true},
		{FulfillmentConfirmed, FulfillmentShipped, true},
		{FulfillmentConfirmed, FulfillmentCancelled, true},
		{FulfillmentShipped, FulfillmentDelivered, true},
		{FulfillmentShipped, FulfillmentCancelled, true},

		// no skipping
		{FulfillmentNew, FulfillmentShipped, false},
		{FulfillmentNew, FulfillmentDelivered, false},
		{FulfillmentConfirmed, FulfillmentDelivered, false},

		// no going back
		{FulfillmentConfirmed, FulfillmentNew, false},
		{FulfillmentShipped, FulfillmentConfirmed, false},

		// terminal states have no outgoing edges
		{FulfillmentDelivered, FulfillmentCancelled, false},
		{FulfillmentCancelled, FulfillmentNew, false},
		{FulfillmentCancelled, FulfillmentConfirmed, false},

		// no self loops
		{FulfillmentNew, FulfillmentNew, false},
		{FulfillmentDelivered, FulfillmentDelivered, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.wantOK {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.wantOK)
		}

		err := ValidateFulfillmentTransition(tt.from, tt.to)
		if tt.wantOK && err != nil {
			t.Errorf("ValidateFulfillmentTransition(%s -> %s): unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.wantOK && !apperr.Is(err, apperr.KindInvalidTransition) {
			t.Errorf("ValidateFulfillmentTransition(%s -> %s): expected invalid transition error, got %v", tt.from, tt.to, err)
		}
	}
}

func TestFulfillmentIsTerminal(t *testing.T) {
	for _, s := range []FulfillmentStatus{FulfillmentNew, FulfillmentConfirmed, FulfillmentShipped} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []FulfillmentStatus{FulfillmentDelivered, FulfillmentCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestValidatePaymentTransition(t *testing.T) {
	tests := []struct {
		name    string
		current PaymentStatus
		target  PaymentStatus
		wantErr bool
	}{
		{"unpaid to paid", PaymentUnpaid, PaymentPaid, false},
		{"paid back to unpaid", PaymentPaid, PaymentUnpaid, false},
		{"paid to refunded", PaymentPaid, PaymentRefunded, false},
		{"refund without payment", PaymentUnpaid, PaymentRefunded, true},
		{"refunded is final, to paid", PaymentRefunded, PaymentPaid, true},
		{"refunded is final, to unpaid", PaymentRefunded, PaymentUnpaid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePaymentTransition(tt.current, tt.target)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindInvalidState) {
					t.Errorf("expected invalid state error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParsePaymentStatus(t *testing.T) {
	for _, raw := range []string{"UNPAID", "PAID", "REFUNDED"} {
		if _, err := ParsePaymentStatus(raw); err != nil {
			t.Errorf("ParsePaymentStatus(%q): unexpected error %v", raw, err)
		}
	}
	if _, err := ParsePaymentStatus("PENDING"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("ParsePaymentStatus(PENDING): expected validation error, got %v", err)
	}
}

func TestComputeTotalCents(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  int64
	}{
		{"empty", nil, 0},
		{"single line", []Item{{Quantity: 2, UnitPriceCents: 1500}}, 3000},
		{"multiple lines", []Item{
			{Quantity: 1, UnitPriceCents: 9999},
			{Quantity: 3, UnitPriceCents: 250},
		}, 10749},
		{"free item", []Item{{Quantity: 5, UnitPriceCents: 0}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeTotalCents(tt.items); got != tt.want {
				t.Errorf("ComputeTotalCents() = %d, want %d", got, tt.want)
			}
		})
	}
}
