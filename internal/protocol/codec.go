package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/and161185/glossary/internal/model"
)

// MaxFrameSize bounds a single encoded envelope.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned for an envelope above MaxFrameSize, on either side.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// Envelope fields.
const (
	fieldOperation   protowire.Number = 1 // legacy status, see Envelope.Status
	fieldKey         protowire.Number = 2
	fieldValues      protowire.Number = 3
	fieldOutcome     protowire.Number = 4
	fieldRequestKind protowire.Number = 5
)

// Item fields.
const (
	fieldItemID    protowire.Number = 1
	fieldItemText  protowire.Number = 2
	fieldItemState protowire.Number = 3
)

// Marshal encodes e in protobuf wire format without framing.
func Marshal(e Envelope) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOperation, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Status()))
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalItem(e.Key))
	for _, v := range e.Values {
		b = protowire.AppendTag(b, fieldValues, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalItem(v))
	}
	if e.Outcome != OutcomeNone {
		b = protowire.AppendTag(b, fieldOutcome, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Outcome))
	}
	b = protowire.AppendTag(b, fieldRequestKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Operation))
	return b
}

func marshalItem(it model.Item) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldItemID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(it.ID))
	if it.Text != nil {
		b = protowire.AppendTag(b, fieldItemText, protowire.BytesType)
		b = protowire.AppendString(b, *it.Text)
	}
	if it.State != model.StateOriginal {
		b = protowire.AppendTag(b, fieldItemState, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(it.State))
	}
	return b
}

// Unmarshal decodes an envelope produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (Envelope, error) {
	e := Envelope{Key: model.Item{ID: model.NoID}}
	var (
		status  Operation
		kind    Operation
		hasKind bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Envelope{}, fmt.Errorf("envelope tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldOperation && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Envelope{}, fmt.Errorf("envelope operation: %w", protowire.ParseError(m))
			}
			status, n = Operation(v), m
		case num == fieldRequestKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Envelope{}, fmt.Errorf("envelope kind: %w", protowire.ParseError(m))
			}
			kind, hasKind, n = Operation(v), true, m
		case num == fieldOutcome && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Envelope{}, fmt.Errorf("envelope outcome: %w", protowire.ParseError(m))
			}
			e.Outcome, n = Outcome(v), m
		case (num == fieldKey || num == fieldValues) && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Envelope{}, fmt.Errorf("envelope item: %w", protowire.ParseError(m))
			}
			it, err := unmarshalItem(raw)
			if err != nil {
				return Envelope{}, err
			}
			if num == fieldKey {
				e.Key = it
			} else {
				e.Values = append(e.Values, it)
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}

	switch {
	case hasKind:
		e.Operation = kind
	default:
		// peer without field 5: field 1 is both verb and status
		e.Operation = status
		if status == OpOriginConfirmed && e.Outcome == OutcomeNone {
			e.Outcome = OutcomeSuccess
		}
	}
	return e, nil
}

func unmarshalItem(b []byte) (model.Item, error) {
	it := model.Item{ID: model.NoID}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return model.Item{}, fmt.Errorf("item tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldItemID && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return model.Item{}, fmt.Errorf("item id: %w", protowire.ParseError(m))
			}
			it.ID, n = protowire.DecodeZigZag(v), m
		case num == fieldItemText && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return model.Item{}, fmt.Errorf("item text: %w", protowire.ParseError(m))
			}
			it.Text, n = &s, m
		case num == fieldItemState && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return model.Item{}, fmt.Errorf("item state: %w", protowire.ParseError(m))
			}
			it.State, n = model.ItemState(v), m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return model.Item{}, fmt.Errorf("item field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return it, nil
}

// WriteEnvelope writes e as a uvarint length followed by the encoded message
// and flushes.
func WriteEnvelope(w io.Writer, e Envelope) error {
	body := Marshal(e)
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	bw := bufio.NewWriter(w)
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(body)))
	if _, err := bw.Write(hdr[:n]); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadEnvelope reads exactly one framed envelope from r.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	size, err := binary.ReadUvarint(br)
	if err != nil {
		return Envelope{}, err
	}
	if size > MaxFrameSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(br, buf); err != nil {
		return Envelope{}, err
	}
	return Unmarshal(buf)
}
