// Package protocol defines the envelope exchanged between front ends and the
// backend, one per direction per connection, and its wire encoding.
package protocol

import "github.com/and161185/glossary/internal/model"

// Operation is the request verb. Integer values are a wire contract shared with
// every front end and must never be renumbered.
type Operation int32

const (
	OpLookup          Operation = 1
	OpInsert          Operation = 2
	OpUpdate          Operation = 3
	OpDelete          Operation = 4
	OpOriginConfirmed Operation = 5
	OpDisconnect      Operation = 6
)

// String implements fmt.Stringer.
func (o Operation) String() string {
	switch o {
	case OpLookup:
		return "lookup"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpOriginConfirmed:
		return "origin-confirmed"
	case OpDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Outcome reports how the backend handled a request. OutcomeNone is what a
// request carries before the backend has seen it.
type Outcome int32

const (
	OutcomeNone      Outcome = 0
	OutcomeSuccess   Outcome = 1
	OutcomeNotFound  Outcome = 2
	OutcomeConflict  Outcome = 3
	OutcomeTransient Outcome = 4
	OutcomeRejected  Outcome = 5
	OutcomeFailed    Outcome = 6
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeConflict:
		return "conflict"
	case OutcomeTransient:
		return "transient"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Envelope is the single request/response unit of an exchange.
//
// Operation is the verb the caller asked for and the backend never rewrites it;
// the result travels in Outcome. Status folds both back into the single code
// older front ends expect.
type Envelope struct {
	Operation Operation
	Outcome   Outcome
	Key       model.Item   // the term
	Values    []model.Item // definitions attached to Key, caller order
}

// NewEnvelope returns a request for op on term with no definitions attached.
func NewEnvelope(op Operation, term string) Envelope {
	return Envelope{Operation: op, Key: model.NewItem(term, model.StateOriginal)}
}

// Status returns OpOriginConfirmed for a successful response and the request
// verb otherwise.
func (e Envelope) Status() Operation {
	if e.Outcome == OutcomeSuccess {
		return OpOriginConfirmed
	}
	return e.Operation
}

// Confirmed reports whether the backend committed the requested change.
func (e Envelope) Confirmed() bool { return e.Status() == OpOriginConfirmed }

// Clone returns a deep copy of e so a handler can mutate it freely.
func (e Envelope) Clone() Envelope {
	out := e
	out.Key = e.Key.Clone()
	if e.Values != nil {
		out.Values = make([]model.Item, len(e.Values))
		for i, v := range e.Values {
			out.Values[i] = v.Clone()
		}
	}
	return out
}
