package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"careerhub/internal/apperr"
)

type sample struct {
	Rate     int64  `json:"proposed_rate" validate:"gt=0"`
	Currency string `json:"currency" validate:"required,iso4217"`
	Kind     string `json:"rate_type" validate:"required,oneof=fixed hourly"`
	Provider string `json:"provider" validate:"provider"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(sample{Rate: 1, Currency: "USD", Kind: "fixed"}))

	cases := map[string]struct {
		in   sample
		want string
	}{
		"rate":     {sample{Rate: 0, Currency: "USD", Kind: "fixed"}, "proposed_rate must be greater than 0"},
		"currency": {sample{Rate: 1, Currency: "XXY", Kind: "fixed"}, "currency must be a 3-letter ISO-4217 currency code"},
		"kind":     {sample{Rate: 1, Currency: "USD", Kind: "daily"}, "rate_type must be one of: fixed hourly"},
		"provider": {sample{Rate: 1, Currency: "USD", Kind: "fixed", Provider: "paypal"}, "provider must be stripe or yoco"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Struct(tc.in)
			appErr, ok := apperr.As(err)
			if assert.True(t, ok) {
				assert.Equal(t, apperr.CodeValidation, appErr.Code)
				assert.Equal(t, tc.want, appErr.Message)
			}
		})
	}
}
