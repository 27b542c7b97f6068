package trade

import (
	"math/big"
	"math/rand/v2"

	"github.com/shopspring/decimal"
	"github.com/tide-labs/tide/internal/domain"
)

// DustThreshold is the native balance (base units) below which mixed mode
// stops buying and sells instead.
const DustThreshold = 10_000

// Policy draws the random parts of a trade decision.
type Policy struct {
	Dust *big.Int
	intN func(n int) int
}

// DefaultPolicy uses the package RNG and the standard dust threshold.
func DefaultPolicy() Policy {
	return Policy{Dust: big.NewInt(DustThreshold), intN: rand.IntN}
}

// NewPolicy builds a policy with a custom RNG (tests pin it).
func NewPolicy(dust int64, intN func(n int) int) Policy {
	return Policy{Dust: big.NewInt(dust), intN: intN}
}

// Direction picks Buy or Sell from the trade mode and live balances.
func (p Policy) Direction(mode domain.TradeMode, native, token *big.Int) domain.TradeDirection {
	switch mode {
	case domain.TradeBuyOnly:
		return domain.Buy
	case domain.TradeSellOnly:
		return domain.Sell
	}
	if orZero(token).Sign() == 0 {
		return domain.Buy
	}
	if orZero(native).Cmp(p.Dust) < 0 {
		return domain.Sell
	}
	if p.intN(2) == 1 {
		return domain.Sell
	}
	return domain.Buy
}

// Percentage draws uniformly from the inclusive range [lo, hi].
func (p Policy) Percentage(rng [2]uint32) uint32 {
	lo, hi := rng[0], rng[1]
	if hi <= lo {
		return lo
	}
	return lo + uint32(p.intN(int(hi-lo)+1))
}

// ApplyPercentage returns bal × pct / 100, rounded down.
func ApplyPercentage(bal *big.Int, pct uint32) *big.Int {
	out := new(big.Int).Mul(orZero(bal), big.NewInt(int64(pct)))
	return out.Quo(out, big.NewInt(100))
}

// FormatUnits renders a base-unit amount with the given decimals ("0.25").
func FormatUnits(amount *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(orZero(amount), -int32(decimals)).String()
}
