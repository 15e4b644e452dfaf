package vm

import "fmt"

// Gas is the per-frame counter. Remaining never underflows: Charge refuses
// any amount it cannot cover and leaves the counter untouched.
type Gas struct {
	limit     uint64
	remaining uint64
	refund    int64
}

func NewGas(limit uint64) *Gas {
	return &Gas{limit: limit, remaining: limit}
}

func (g *Gas) Limit() uint64     { return g.limit }
func (g *Gas) Remaining() uint64 { return g.remaining }
func (g *Gas) Refund() int64     { return g.refund }

// Used is limit minus remaining.
func (g *Gas) Used() uint64 {
	return g.limit - g.remaining
}

// Charge deducts amount and reports whether it was affordable.
func (g *Gas) Charge(amount uint64) bool {
	if amount > g.remaining {
		return false
	}
	g.remaining -= amount
	return true
}

// ReturnGas credits back leftover gas from a finished sub-call.
func (g *Gas) ReturnGas(amount uint64) {
	g.remaining += amount
}

func (g *Gas) ConsumeAll() {
	g.remaining = 0
}

func (g *Gas) GrantRefund(amount uint64) {
	g.refund += int64(amount)
}

func (g *Gas) RevokeRefund(amount uint64) {
	g.refund -= int64(amount)
}

// RecordRefund applies a signed refund delta, e.g. one computed by SstoreCost
// or merged from a successful sub-call.
func (g *Gas) RecordRefund(delta int64) {
	g.refund += delta
}

func (g *Gas) String() string {
	return fmt.Sprintf("gas{limit=%d remaining=%d refund=%d}", g.limit, g.remaining, g.refund)
}
