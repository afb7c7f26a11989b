package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldingMarkRemoved(t *testing.T) {
	h := NewActiveHolding(7, 42, 0)
	require.NotNil(t, h.ActiveKey)
	assert.Equal(t, "7:42", *h.ActiveKey)

	now := time.Now()
	require.NoError(t, h.MarkRemoved(now))
	assert.Equal(t, HoldingStatusRemoved, h.Status)
	assert.Nil(t, h.ActiveKey)
	assert.False(t, h.IsActive())

	// REMOVED 是终态
	assert.Error(t, h.MarkRemoved(now))
}

func TestHoldingMarkRemovedRequiresZeroQuantity(t *testing.T) {
	h := NewActiveHolding(1, 1, 3)
	assert.Error(t, h.MarkRemoved(time.Now()))
	assert.True(t, h.IsActive())
}

func TestParseTradeKind(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want TradeKind
		ok   bool
	}{
		{"buy", TradeKindBuy, true},
		{"sell", TradeKindSell, true},
		{"BUY", "", false},
		{" sell", "", false},
		{"", "", false},
	} {
		got, ok := ParseTradeKind(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
