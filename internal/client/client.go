// Package client is a front end for the glossary backend. Every call opens a
// connection, sends one envelope and reads one back.
package client

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/and161185/glossary/internal/model"
	"github.com/and161185/glossary/internal/protocol"
)

// DefaultAddr is where the backend listens unless configured otherwise.
const DefaultAddr = "localhost:16105"

// Client talks to one backend.
type Client struct {
	Addr    string
	Timeout time.Duration // per exchange; 0 = none
}

// New returns a Client for addr.
func New(addr string, timeout time.Duration) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Client{Addr: addr, Timeout: timeout}
}

// Do performs one exchange. The returned envelope carries the backend's outcome;
// err is only set when the exchange itself failed.
func (c *Client) Do(ctx context.Context, req protocol.Envelope) (protocol.Envelope, error) {
	if req.Operation == protocol.OpDisconnect {
		// nothing is held open between exchanges
		return req, nil
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return protocol.Envelope{}, err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := protocol.WriteEnvelope(conn, req); err != nil {
		return protocol.Envelope{}, ctxErr(ctx, err)
	}
	resp, err := protocol.ReadEnvelope(conn)
	if err != nil {
		return protocol.Envelope{}, ctxErr(ctx, err)
	}
	return resp, nil
}

func ctxErr(ctx context.Context, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if _, ok := ctx.Deadline(); ok {
			// the conn deadline mirrors ctx's; let ctx catch up
			<-ctx.Done()
		}
	}
	if cerr := ctx.Err(); cerr != nil {
		return errors.Join(cerr, err)
	}
	return err
}

// Lookup fetches every definition of terms containing term.
func (c *Client) Lookup(ctx context.Context, term string) (protocol.Envelope, error) {
	return c.Do(ctx, protocol.NewEnvelope(protocol.OpLookup, term))
}

// Insert attaches defs to term, creating the term if needed.
func (c *Client) Insert(ctx context.Context, term string, defs ...string) (protocol.Envelope, error) {
	req := protocol.NewEnvelope(protocol.OpInsert, term)
	for _, d := range defs {
		req.Values = append(req.Values, model.NewItem(d, model.StatePendingInsert))
	}
	return c.Do(ctx, req)
}

// Update rewrites definitions of termID.
func (c *Client) Update(ctx context.Context, termID int64, edits ...model.DefinitionEdit) (protocol.Envelope, error) {
	req := protocol.Envelope{Operation: protocol.OpUpdate, Key: model.Item{ID: termID}}
	for _, e := range edits {
		it := model.NewItem(e.Definition, model.StatePendingUpdate)
		it.ID = e.ID
		req.Values = append(req.Values, it)
	}
	return c.Do(ctx, req)
}

// Delete removes definitions of termID, and termID itself once it has none left.
func (c *Client) Delete(ctx context.Context, termID int64, ids ...int64) (protocol.Envelope, error) {
	req := protocol.Envelope{Operation: protocol.OpDelete, Key: model.Item{ID: termID}}
	for _, id := range ids {
		req.Values = append(req.Values, model.Item{ID: id, State: model.StatePendingDelete})
	}
	return c.Do(ctx, req)
}
