package service

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// 随机买卖序列下，引擎结果与简单模型一致，积分与持仓始终非负
func TestLedgerMatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		start := rapid.Int64Range(0, 5000).Draw(rt, "start")
		f.mem.SeedBalance(memberA, start)

		points := start
		holdings := map[int64]int64{}
		var committed int

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			kind := rapid.SampledFrom([]string{"buy", "sell"}).Draw(rt, "kind")
			item := rapid.SampledFrom([]int64{itemX, itemY}).Draw(rt, "item")
			qty := rapid.Int64Range(1, 10).Draw(rt, "qty")
			total := rapid.Int64Range(0, 1500).Draw(rt, "total")

			rec, err := f.svc.Execute(asMember(memberA), memberA, trade(kind, item, qty, total))

			switch {
			case kind == "buy" && points < total:
				if !errors.Is(err, ErrInsufficientFunds) {
					rt.Fatalf("step %d: want insufficient funds, got %v", i, err)
				}
			case kind == "sell" && holdings[item] < qty:
				if !errors.Is(err, ErrInsufficientHoldings) {
					rt.Fatalf("step %d: want insufficient holdings, got %v", i, err)
				}
			default:
				if err != nil {
					rt.Fatalf("step %d: unexpected error %v", i, err)
				}
				if rec.BalanceBefore != points {
					rt.Fatalf("step %d: balance_before %d, model %d", i, rec.BalanceBefore, points)
				}
				if kind == "buy" {
					points -= total
					holdings[item] += qty
				} else {
					points += total
					holdings[item] -= qty
				}
				committed++
			}

			if got := f.points(t, memberA); got != points || got < 0 {
				rt.Fatalf("step %d: points %d, model %d", i, got, points)
			}
			for _, it := range []int64{itemX, itemY} {
				got, active := f.activeQuantity(t, memberA, it)
				if got != holdings[it] || active != (holdings[it] > 0) {
					rt.Fatalf("step %d: item %d quantity %d active %v, model %d", i, it, got, active, holdings[it])
				}
			}
		}

		for _, h := range f.mem.Holdings(memberA) {
			if h.Quantity < 0 || (!h.IsActive() && h.Quantity != 0) {
				rt.Fatalf("holding %d violates lifecycle: %+v", h.ID, h)
			}
		}
		if n := len(f.mem.Transactions(memberA)); n != committed {
			rt.Fatalf("transactions %d, committed %d", n, committed)
		}
	})
}
