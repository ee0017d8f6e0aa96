package normalizer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeAmountString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{name: "us grouping with dollar", in: "$1,234.56", want: 1234.56},
		{name: "european grouping with euro", in: "€1.234,56", want: 1234.56},
		{name: "lone comma is decimal", in: "123,45", want: 123.45},
		{name: "plain integer", in: "1500", want: 1500},
		{name: "plain decimal", in: "123.45", want: 123.45},
		{name: "negative european", in: "-1.234,50", want: -1234.5},
		{name: "whitespace padded", in: "  250,00 ", want: 250},
		{name: "pound symbol", in: "£99.99", want: 99.99},
		{name: "multiple us groups", in: "1,234,567.89", want: 1234567.89},
		{name: "multiple eu groups", in: "1.234.567,89", want: 1234567.89},
		{name: "zero", in: "0", want: 0},
		{name: "rounds half away from zero", in: "123.456", want: 123.46},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeAmountString(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestSanitizeAmountStringInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "--", "12..34.", "€", "N/A"} {
		t.Run(in, func(t *testing.T) {
			_, err := SanitizeAmountString(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestSanitizeAmount(t *testing.T) {
	t.Run("rounds up at half", func(t *testing.T) {
		got, err := SanitizeAmount(123.456)
		require.NoError(t, err)
		assert.Equal(t, 123.46, got)
	})

	t.Run("rounds down below half", func(t *testing.T) {
		got, err := SanitizeAmount(123.454)
		require.NoError(t, err)
		assert.Equal(t, 123.45, got)
	})

	t.Run("negative rounds away from zero", func(t *testing.T) {
		got, err := SanitizeAmount(-123.455)
		require.NoError(t, err)
		assert.Equal(t, -123.46, got)
	})

	t.Run("rejects NaN", func(t *testing.T) {
		_, err := SanitizeAmount(math.NaN())
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("rejects infinity", func(t *testing.T) {
		_, err := SanitizeAmount(math.Inf(1))
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = SanitizeAmount(math.Inf(-1))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2024-03-15", want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{in: "15/03/2024", want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{in: "2024/03/15", want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDate(tc.in)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got))
		})
	}

	t.Run("rejects implausible year", func(t *testing.T) {
		_, err := ParseDate("1850-01-01")
		assert.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseDate("not a date")
		assert.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseDate("  ")
		assert.ErrorIs(t, err, ErrInvalidDate)
	})
}
