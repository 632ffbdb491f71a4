// Package service contains the data access engine that applies envelopes to the store.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/glossary/internal/errs"
	"github.com/and161185/glossary/internal/model"
	"github.com/and161185/glossary/internal/protocol"
	"github.com/and161185/glossary/internal/repository"
)

// Handler applies one request envelope and returns the response envelope.
type Handler interface {
	Handle(ctx context.Context, req protocol.Envelope) protocol.Envelope
	// Close releases the store. No Handle call may follow.
	Close()
}

// Engine translates envelopes into repository calls.
//
// The engine never mutates the request it is given. A response is either the
// request with every confirmed change applied and OutcomeSuccess, or the
// untouched request with a failure outcome.
type Engine struct {
	repo         repository.GlossaryRepository
	log          *zap.Logger
	atomicDelete bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAtomicDelete makes Delete remove definitions and prune the emptied term
// in one transaction instead of two consecutive ones.
func WithAtomicDelete() Option {
	return func(e *Engine) { e.atomicDelete = true }
}

// NewEngine constructs an Engine over repo.
func NewEngine(repo repository.GlossaryRepository, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{repo: repo, log: log}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Handle dispatches req on its operation.
func (e *Engine) Handle(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	switch req.Operation {
	case protocol.OpLookup:
		return e.lookup(ctx, req)
	case protocol.OpInsert:
		return e.insert(ctx, req)
	case protocol.OpUpdate:
		return e.update(ctx, req)
	case protocol.OpDelete:
		return e.delete(ctx, req)
	default:
		return e.fail(req, fmt.Errorf("%w: %d", errs.ErrUnknownOperation, req.Operation))
	}
}

// Close closes the repository.
func (e *Engine) Close() { e.repo.Close() }

func (e *Engine) lookup(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	term := req.Key.TextOr("")
	if strings.TrimSpace(term) == "" {
		return e.fail(req, fmt.Errorf("%w: empty term", errs.ErrInvalid))
	}
	rows, err := e.repo.Lookup(ctx, term)
	if err != nil {
		return e.fail(req, err)
	}

	out := req.Clone()
	out.Key.ID = model.NoID
	out.Values = make([]model.Item, 0, len(rows))
	for _, r := range rows {
		out.Values = append(out.Values, model.Item{ID: r.ID, Text: r.Definition, State: model.StateOriginal})
		out.Key.ID = r.TermID
	}
	if len(rows) == 0 {
		out.Outcome = protocol.OutcomeNotFound
		return out
	}
	out.Outcome = protocol.OutcomeSuccess
	if n := len(protocol.Marshal(out)); n > protocol.MaxFrameSize {
		return e.fail(req, fmt.Errorf("%d matches: %w: %d bytes", len(rows), protocol.ErrFrameTooLarge, n))
	}
	return out
}

func (e *Engine) insert(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	term := req.Key.TextOr("")
	if strings.TrimSpace(term) == "" {
		return e.fail(req, fmt.Errorf("%w: empty term", errs.ErrInvalid))
	}
	var (
		pending []int
		defs    []string
	)
	for i, v := range req.Values {
		if v.State != model.StatePendingInsert {
			continue
		}
		if v.Text == nil {
			return e.fail(req, fmt.Errorf("%w: value[%d] has no text", errs.ErrInvalid, i))
		}
		pending = append(pending, i)
		defs = append(defs, *v.Text)
	}
	if len(pending) == 0 {
		return e.fail(req, fmt.Errorf("%w: no pending definitions", errs.ErrInvalid))
	}

	termID, ids, err := e.repo.Insert(ctx, term, defs)
	if err != nil {
		return e.fail(req, err)
	}
	if len(ids) != len(defs) {
		return e.fail(req, fmt.Errorf("store returned %d ids for %d definitions", len(ids), len(defs)))
	}

	out := req.Clone()
	out.Key.ID = termID
	for k, i := range pending {
		out.Values[i].ID = ids[k]
		out.Values[i].State = model.StateOriginal
	}
	out.Outcome = protocol.OutcomeSuccess
	return out
}

func (e *Engine) update(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	var (
		pending []int
		edits   []model.DefinitionEdit
	)
	for i, v := range req.Values {
		if v.State != model.StatePendingUpdate {
			continue
		}
		if v.ID <= 0 || v.Text == nil {
			return e.fail(req, fmt.Errorf("%w: value[%d] needs id and text", errs.ErrInvalid, i))
		}
		pending = append(pending, i)
		edits = append(edits, model.DefinitionEdit{ID: v.ID, Definition: *v.Text})
	}

	if len(edits) > 0 {
		if err := e.repo.UpdateDefinitions(ctx, edits); err != nil {
			return e.fail(req, err)
		}
	}

	out := req.Clone()
	for _, i := range pending {
		out.Values[i].State = model.StateOriginal
	}
	out.Outcome = protocol.OutcomeSuccess
	return out
}

func (e *Engine) delete(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	var (
		pending []int
		ids     []int64
	)
	for i, v := range req.Values {
		if v.State != model.StatePendingDelete {
			continue
		}
		if v.ID <= 0 {
			return e.fail(req, fmt.Errorf("%w: value[%d] has no id", errs.ErrInvalid, i))
		}
		pending = append(pending, i)
		ids = append(ids, v.ID)
	}

	termID := req.Key.ID
	if len(ids) > 0 && termID <= 0 {
		return e.fail(req, fmt.Errorf("%w: delete needs the term id", errs.ErrInvalid))
	}
	if len(ids) > 0 {
		pruned, err := e.deleteAndPrune(ctx, termID, ids)
		if err != nil {
			return e.fail(req, err)
		}
		if pruned {
			e.log.Info("term pruned", zap.Int64("term_id", termID))
		}
	}

	out := req.Clone()
	for _, i := range pending {
		out.Values[i].State = model.StateOriginal
	}
	out.Outcome = protocol.OutcomeSuccess
	return out
}

// deleteAndPrune removes ids and then the term if it has no definitions left.
// Unless atomicDelete is set the two steps commit separately, so a definition
// inserted for the same term in between keeps the term alive.
func (e *Engine) deleteAndPrune(ctx context.Context, termID int64, ids []int64) (bool, error) {
	if e.atomicDelete {
		return e.repo.DeleteAndPrune(ctx, termID, ids)
	}
	if err := e.repo.DeleteDefinitions(ctx, ids); err != nil {
		return false, err
	}
	pruned, err := e.repo.PruneTerm(ctx, termID)
	if err != nil {
		e.log.Error("definitions deleted, term prune failed",
			zap.Int64("term_id", termID),
			zap.Int64s("definition_ids", ids),
			zap.Error(err),
		)
		return false, err
	}
	return pruned, nil
}

// fail returns an untouched copy of req carrying the outcome for err.
func (e *Engine) fail(req protocol.Envelope, err error) protocol.Envelope {
	out := req.Clone()
	out.Outcome = OutcomeFor(err)

	fields := []zap.Field{
		zap.Stringer("op", req.Operation),
		zap.String("term", req.Key.TextOr("")),
		zap.Int64("term_id", req.Key.ID),
		zap.Stringer("outcome", out.Outcome),
		zap.Error(err),
	}
	if out.Outcome == protocol.OutcomeRejected {
		e.log.Warn("request rejected", fields...)
	} else {
		e.log.Error("store operation failed", fields...)
	}
	return out
}

// OutcomeFor maps an error onto the outcome reported to the caller.
func OutcomeFor(err error) protocol.Outcome {
	switch errs.Classify(err) {
	case errs.ClassNone:
		return protocol.OutcomeSuccess
	case errs.ClassNotFound:
		return protocol.OutcomeNotFound
	case errs.ClassConflict:
		return protocol.OutcomeConflict
	case errs.ClassTransient:
		return protocol.OutcomeTransient
	case errs.ClassInvalid:
		return protocol.OutcomeRejected
	default:
		return protocol.OutcomeFailed
	}
}
