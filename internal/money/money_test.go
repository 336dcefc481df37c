package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
		wantErr  error
	}{
		{name: "usd cents", amount: "100.00", currency: "USD", want: 10000},
		{name: "usd no fraction", amount: "100", currency: "USD", want: 10000},
		{name: "usd single digit fraction", amount: "0.5", currency: "USD", want: 50},
		{name: "jpy whole", amount: "250", currency: "JPY", want: 250},
		{name: "kwd three digits", amount: "1.234", currency: "KWD", want: 1234},
		{name: "unknown currency", amount: "10.00", currency: "XYZ", wantErr: domain.ErrInvalidCurrency},
		{name: "zero", amount: "0.00", currency: "USD", wantErr: domain.ErrInvalidAmount},
		{name: "negative", amount: "-5.00", currency: "USD", wantErr: domain.ErrInvalidAmount},
		{name: "too many fraction digits", amount: "1.001", currency: "USD", wantErr: domain.ErrInvalidAmount},
		{name: "jpy rejects fraction", amount: "1.5", currency: "JPY", wantErr: domain.ErrInvalidAmount},
		{name: "not a number", amount: "ten", currency: "USD", wantErr: domain.ErrInvalidAmount},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.amount, tc.currency)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "100.00", Format(10000, "USD"))
	assert.Equal(t, "0.05", Format(5, "USD"))
	assert.Equal(t, "-40.00", Format(-4000, "USD"))
	assert.Equal(t, "250", Format(250, "JPY"))
	assert.Equal(t, "1.234", Format(1234, "KWD"))
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()

	for _, amount := range []string{"0.01", "19.99", "12345.67"} {
		minor, err := Parse(amount, "USD")
		require.NoError(t, err)
		assert.Equal(t, amount, Format(minor, "USD"))
	}
}
