package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/glossary/internal/model"
	"github.com/and161185/glossary/internal/protocol"
)

func newLookupCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <term>",
		Short: "Show definitions of every term containing <term>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, func(ctx context.Context) (protocol.Envelope, error) {
				return g.client().Lookup(ctx, args[0])
			})
		},
	}
}

func newInsertCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <term> <definition> [definition...]",
		Short: "Add definitions to a term, creating the term if needed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, func(ctx context.Context) (protocol.Envelope, error) {
				return g.client().Insert(ctx, args[0], args[1:]...)
			})
		},
	}
}

func newUpdateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "update <term-id> <definition-id>=<text> [...]",
		Short: "Rewrite definitions; all of them change or none do",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			termID, err := parseID(args[0])
			if err != nil {
				return fmt.Errorf("update: %w", err)
			}
			edits := make([]model.DefinitionEdit, 0, len(args)-1)
			for _, a := range args[1:] {
				e, err := parseEdit(a)
				if err != nil {
					return fmt.Errorf("update: %w", err)
				}
				edits = append(edits, e)
			}
			return send(cmd, func(ctx context.Context) (protocol.Envelope, error) {
				return g.client().Update(ctx, termID, edits...)
			})
		},
	}
}

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <term-id> <definition-id> [definition-id...]",
		Short: "Remove definitions; the term goes with its last one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return fmt.Errorf("delete: %w", err)
				}
				ids = append(ids, id)
			}
			return send(cmd, func(ctx context.Context) (protocol.Envelope, error) {
				return g.client().Delete(ctx, ids[0], ids[1:]...)
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseEdit parses "ID=TEXT".
func parseEdit(s string) (model.DefinitionEdit, error) {
	idPart, text, ok := strings.Cut(s, "=")
	if !ok {
		return model.DefinitionEdit{}, fmt.Errorf("want ID=TEXT, got %q", s)
	}
	id, err := parseID(idPart)
	if err != nil {
		return model.DefinitionEdit{}, err
	}
	return model.DefinitionEdit{ID: id, Definition: text}, nil
}
