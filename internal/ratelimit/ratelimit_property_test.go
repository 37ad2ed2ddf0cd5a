//go:build property

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFixedWindowBudgetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(7)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("a window admits exactly min(calls, limit)", prop.ForAll(
		func(limit, calls int) bool {
			limiter := NewFixedWindow(time.Minute, newFakeClock().Now, nil)
			allowed := 0
			last := limit
			for i := 0; i < calls; i++ {
				res, err := limiter.Check(context.Background(), limit, "k")
				if err != nil {
					return false
				}
				if res.Success {
					if res.Remaining != last-1 {
						return false
					}
					last = res.Remaining
					allowed++
				} else if res.Remaining != 0 {
					return false
				}
			}
			want := calls
			if limit < calls {
				want = limit
			}
			return allowed == want
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 50),
	))

	properties.Property("the budget resets in every new window", prop.ForAll(
		func(limit, windows int) bool {
			clock := newFakeClock()
			limiter := NewFixedWindow(time.Minute, clock.Now, nil)
			for w := 0; w < windows; w++ {
				for i := 0; i < limit; i++ {
					if res, _ := limiter.Check(context.Background(), limit, "k"); !res.Success {
						return false
					}
				}
				if res, _ := limiter.Check(context.Background(), limit, "k"); res.Success {
					return false
				}
				clock.Advance(time.Minute)
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
