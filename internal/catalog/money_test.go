package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want Money
	}{
		{name: "pound symbol", in: "£51.77", want: 5177},
		{name: "plain", in: "20.66", want: 2066},
		{name: "no fraction", in: "12", want: 1200},
		{name: "single fraction digit", in: "3.5", want: 350},
		{name: "thousands separator", in: "£1,024.99", want: 102499},
		{name: "surrounding text", in: "Price: £9.00 (incl. tax)", want: 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMoney(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseMoneyRejectsNonNumeric(t *testing.T) {
	t.Parallel()

	_, err := ParseMoney("out of stock")
	require.Error(t, err)
}

func TestMoneyString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "51.77", Money(5177).String())
	require.Equal(t, "0.05", Money(5).String())
	require.Equal(t, "0.00", Money(0).String())
	require.Equal(t, "-3.20", Money(-320).String())
}
