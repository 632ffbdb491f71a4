package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/glossary/internal/gate"
	"github.com/and161185/glossary/internal/protocol"
)

// Gated routes every call into a Handler through a Gate.
type Gated struct {
	next      Handler
	gate      gate.Gate
	log       *zap.Logger
	closeOnce sync.Once
}

// NewGated wraps next so that calls enter it one at a time as g allows.
func NewGated(next Handler, g gate.Gate, log *zap.Logger) *Gated {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gated{next: next, gate: g, log: log}
}

// Handle waits for the gate and runs the request. ctx only bounds the wait:
// once admitted the request runs to commit or rollback.
func (g *Gated) Handle(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	var resp protocol.Envelope
	err := g.gate.Do(ctx, func(ctx context.Context) error {
		resp = g.next.Handle(context.WithoutCancel(ctx), req)
		return nil
	})
	if err != nil {
		g.log.Warn("request abandoned at gate", zap.Stringer("op", req.Operation), zap.Error(err))
		resp = req.Clone()
		resp.Outcome = protocol.OutcomeTransient
	}
	return resp
}

// Close closes the wrapped handler once every admitted request has finished.
// Later calls do nothing.
func (g *Gated) Close() {
	g.closeOnce.Do(func() {
		_ = g.gate.Do(context.Background(), func(context.Context) error {
			g.next.Close()
			return nil
		})
	})
}
