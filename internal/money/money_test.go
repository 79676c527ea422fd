package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		gross, fee, net int64
	}{
		{5000, 250, 4750},
		{1, 0, 1},
		{19, 0, 19},
		{20, 1, 19},
		{12345, 617, 11728},
	}
	for _, tt := range tests {
		fee, net := SplitFee(tt.gross, 5)
		assert.Equal(t, tt.fee, fee, "fee for %d", tt.gross)
		assert.Equal(t, tt.net, net, "net for %d", tt.gross)
		assert.Equal(t, tt.gross, fee+net)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "USD 47.50", Format(4750, "usd"))
	assert.Equal(t, "ZAR 0.05", Format(5, "ZAR"))
	assert.Equal(t, "JPY 5000", Format(5000, "JPY"))
}
