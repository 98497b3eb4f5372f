// README: Deterministic gateway simulator; declines by policy, records every call.
package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sparkle/internal/errorx"
	"sparkle/internal/types"
)

// DeclineMarker in an instrument or ref forces a decline, so flows can be
// exercised end to end without a live gateway.
const DeclineMarker = "declined"

type Call struct {
	Op     string
	Ref    string
	Amount types.Money
}

// SimGateway is the deterministic Gateway used outside omise mode and in
// tests. Behavior is a pure function of its inputs and configuration:
// amounts above DeclineOverCents decline, as does anything carrying
// DeclineMarker. Zero DeclineOverCents means no amount limit.
type SimGateway struct {
	DeclineOverCents int64

	mu    sync.Mutex
	seq   int
	calls []Call
}

func NewSimGateway(declineOverCents int64) *SimGateway {
	return &SimGateway{DeclineOverCents: declineOverCents}
}

func (g *SimGateway) Authorize(_ context.Context, amount types.Money, instrument string) (string, error) {
	g.record("authorize", instrument, amount)
	if g.declines(amount, instrument) {
		return "", fmt.Errorf("authorize %d: %w", amount.Amount, errorx.ErrPaymentDeclined)
	}
	g.mu.Lock()
	g.seq++
	ref := fmt.Sprintf("sim_intent_%d", g.seq)
	g.mu.Unlock()
	return ref, nil
}

func (g *SimGateway) Capture(_ context.Context, ref string, amount types.Money) error {
	g.record("capture", ref, amount)
	if g.declines(amount, ref) {
		return fmt.Errorf("capture %s: %w", ref, errorx.ErrPaymentDeclined)
	}
	return nil
}

func (g *SimGateway) Void(_ context.Context, ref string) error {
	g.record("void", ref, types.Money{})
	return nil
}

func (g *SimGateway) Refund(_ context.Context, ref string, amount types.Money) error {
	g.record("refund", ref, amount)
	return nil
}

func (g *SimGateway) declines(amount types.Money, marker string) bool {
	if strings.Contains(marker, DeclineMarker) {
		return true
	}
	return g.DeclineOverCents > 0 && amount.Amount > g.DeclineOverCents
}

func (g *SimGateway) record(op, ref string, amount types.Money) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: op, Ref: ref, Amount: amount})
}

// Calls returns a copy of everything the gateway has been asked to do.
func (g *SimGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make([]Call, len(g.calls))
	copy(cp, g.calls)
	return cp
}

// CallCount counts calls for one operation.
func (g *SimGateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
