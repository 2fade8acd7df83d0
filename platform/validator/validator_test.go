package validator

import "testing"

type bookingRequest struct {
	Duration int    `json:"duration" validate:"required,gt=0,max=480"`
	Reason   string `json:"reason" validate:"max=10"`
}

func TestFieldErrorsUsesJSONNames(t *testing.T) {
	err := New().Struct(bookingRequest{Duration: 900, Reason: "annual check-up"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	fields := FieldErrors(err)
	if fields["duration"] != "max=480" {
		t.Fatalf("expected duration max rule, got %v", fields)
	}
	if fields["reason"] != "max=10" {
		t.Fatalf("expected reason max rule, got %v", fields)
	}
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	if FieldErrors(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
