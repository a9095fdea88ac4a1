package domain

import (
	"testing"

	"inbox_crm_backend/platform/apperr"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"NEW", StatusNew, false},
		{"CONVERTED", StatusConverted, false},
		{"LOST", StatusLost, false},
		{"CLOSED", StatusClosed, false},
		{"new", "", true},
		{"", "", true},
		{"OPEN", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStatus(%q): expected error, got %q", tt.raw, got)
			}
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("ParseStatus(%q): expected validation error, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q): unexpected error %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if StatusNew.IsTerminal() {
		t.Error("NEW should not be terminal")
	}
	for _, s := range []Status{StatusConverted, StatusLost, StatusClosed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from   Status
		to     Status
		wantOK bool
	}{
		{StatusNew, StatusConverted, true},
		{StatusNew, StatusLost, true},
		{StatusNew, StatusClosed, true},
		{StatusNew, StatusNew, false},
		{StatusConverted, StatusClosed, false},
		{StatusLost, StatusNew, false},
		{StatusClosed, StatusConverted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.wantOK {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.wantOK)
		}
	}
}

func TestValidateClose(t *testing.T) {
	t.Run("close targets only", func(t *testing.T) {
		if err := ValidateClose(StatusNew, StatusLost); err != nil {
			t.Errorf("NEW -> LOST: unexpected error %v", err)
		}
		if err := ValidateClose(StatusNew, StatusClosed); err != nil {
			t.Errorf("NEW -> CLOSED: unexpected error %v", err)
		}
	})

	t.Run("conversion is not a close target", func(t *testing.T) {
		err := ValidateClose(StatusNew, StatusConverted)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("NEW -> CONVERTED via close: expected validation error, got %v", err)
		}
	})

	t.Run("terminal leads cannot be closed again", func(t *testing.T) {
		for _, current := range []Status{StatusConverted, StatusLost, StatusClosed} {
			err := ValidateClose(current, StatusLost)
			if !apperr.Is(err, apperr.KindInvalidTransition) {
				t.Errorf("%s -> LOST: expected invalid transition error, got %v", current, err)
			}
		}
	})
}
