// Package model defines domain entities used by services and repositories.
package model

// NoID marks an item that has not been persisted yet.
const NoID int64 = -1

// ItemState tracks a change proposed by a front end until the backend confirms it.
// Values mirror the operation that proposed the change.
type ItemState int32

const (
	StateOriginal      ItemState = 0
	StatePendingInsert ItemState = 2
	StatePendingUpdate ItemState = 3
	StatePendingDelete ItemState = 4
)

// String implements fmt.Stringer.
func (s ItemState) String() string {
	switch s {
	case StateOriginal:
		return "original"
	case StatePendingInsert:
		return "pending-insert"
	case StatePendingUpdate:
		return "pending-update"
	case StatePendingDelete:
		return "pending-delete"
	default:
		return "unknown"
	}
}

// Item is a stored text unit: a term or one of its definitions.
type Item struct {
	ID    int64     // store identity, NoID until persisted
	Text  *string   // nil when absent
	State ItemState // proposed change, StateOriginal once committed
}

// NewItem returns an unpersisted item carrying text.
func NewItem(text string, state ItemState) Item {
	return Item{ID: NoID, Text: &text, State: state}
}

// TextOr returns the item text or def when the text is absent.
func (it Item) TextOr(def string) string {
	if it.Text == nil {
		return def
	}
	return *it.Text
}

// Clone returns a deep copy of it.
func (it Item) Clone() Item {
	if it.Text != nil {
		t := *it.Text
		it.Text = &t
	}
	return it
}

// DefinitionRow is a single lookup match.
type DefinitionRow struct {
	ID         int64
	Definition *string
	TermID     int64
}

// DefinitionEdit replaces the text of an existing definition.
type DefinitionEdit struct {
	ID         int64
	Definition string
}
