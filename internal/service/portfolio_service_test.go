package service

import (
	"context"
	"testing"

	"stockledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioReads(t *testing.T) {
	mem := repository.NewMemoryStore()
	mem.AddMembers(memberA, memberB)
	mem.SeedBalance(memberA, 250)
	mem.SeedHolding(memberA, itemY, 2)
	mem.SeedHolding(memberA, itemX, 7)

	svc := NewPortfolioService(mem)

	points, err := svc.CurrentBalance(asMember(memberA), memberA)
	require.NoError(t, err)
	assert.Equal(t, int64(250), points)

	// 无积分账户视为 0
	points, err = svc.CurrentBalance(asMember(memberB), memberB)
	require.NoError(t, err)
	assert.Equal(t, int64(0), points)

	holdings, err := svc.CurrentHoldings(asMember(memberA), memberA)
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, itemX, holdings[0].ItemID)
	assert.Equal(t, int64(7), holdings[0].Quantity)

	qty, active, err := svc.CurrentHolding(asMember(memberA), memberA, itemY)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, int64(2), qty)

	qty, active, err = svc.CurrentHolding(asMember(memberB), memberB, itemY)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Zero(t, qty)
}

func TestPortfolioAuthorization(t *testing.T) {
	mem := repository.NewMemoryStore()
	mem.AddMembers(memberA)
	svc := NewPortfolioService(mem)

	_, err := svc.CurrentBalance(context.Background(), memberA)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.CurrentHoldings(asMember(memberB), memberA)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.CurrentBalance(asMember(99), 99)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestPortfolioTradeLookup(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedBalance(memberA, 100)
	rec, err := f.svc.Execute(asMember(memberA), memberA, trade("buy", itemX, 1, 40))
	require.NoError(t, err)

	svc := NewPortfolioService(f.mem)

	got, err := svc.Trade(asMember(memberA), memberA, rec.TransactionNo)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, int64(60), got.BalanceAfter)

	// 他人的流水号
	_, err = svc.Trade(asMember(memberB), memberB, rec.TransactionNo)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "transaction", nf.Entity)

	_, err = svc.Trade(asMember(memberA), memberA, "TRD-missing")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "TRD-missing", nf.Key)

	_, err = svc.Trade(asMember(memberB), memberA, rec.TransactionNo)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
