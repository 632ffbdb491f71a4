// Command glossary is a command-line front end for the glossary backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/glossary/internal/client"
	"github.com/and161185/glossary/internal/protocol"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	addr    string
	timeout time.Duration
}

func (g *globals) client() *client.Client { return client.New(g.addr, g.timeout) }

// newRootCmd creates the root command with all subcommands attached.
func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "glossary",
		Short:         "Query and edit the glossary",
		Long:          "glossary sends one request per invocation to the glossary backend\nand prints the response as JSON.",
		Version:       fmt.Sprintf("glossary %s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVar(&g.addr, "addr", client.DefaultAddr, "backend address")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "per-request timeout")

	cmd.AddCommand(
		newLookupCmd(g),
		newInsertCmd(g),
		newUpdateCmd(g),
		newDeleteCmd(g),
	)
	return cmd
}

// ---- output ----

type itemView struct {
	ID    int64   `json:"id"`
	Text  *string `json:"text,omitempty"`
	State string  `json:"state"`
}

type responseView struct {
	RequestID string     `json:"request_id"`
	Operation string     `json:"operation"`
	Status    string     `json:"status"`
	Outcome   string     `json:"outcome"`
	Term      itemView   `json:"term"`
	Values    []itemView `json:"definitions"`
}

func view(id uuid.UUID, e protocol.Envelope) responseView {
	v := responseView{
		RequestID: id.String(),
		Operation: e.Operation.String(),
		Status:    e.Status().String(),
		Outcome:   e.Outcome.String(),
		Term:      itemView{ID: e.Key.ID, Text: e.Key.Text, State: e.Key.State.String()},
		Values:    make([]itemView, 0, len(e.Values)),
	}
	for _, it := range e.Values {
		v.Values = append(v.Values, itemView{ID: it.ID, Text: it.Text, State: it.State.String()})
	}
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// send runs fn, prints the response and fails the command
// unless the backend confirmed it. A lookup miss is reported, not failed.
func send(cmd *cobra.Command, fn func(ctx context.Context) (protocol.Envelope, error)) error {
	id := uuid.Must(uuid.NewV4())
	resp, err := fn(cmd.Context())
	if err != nil {
		return fmt.Errorf("request %s: %w", id, err)
	}
	if err := printJSON(cmd.OutOrStdout(), view(id, resp)); err != nil {
		return err
	}
	if resp.Confirmed() || (resp.Outcome == protocol.OutcomeNotFound && resp.Operation == protocol.OpLookup) {
		return nil
	}
	return fmt.Errorf("%s: %s", resp.Operation, resp.Outcome)
}
