package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rootandstem/curriculum-cli/internal/model"
	"github.com/rootandstem/curriculum-cli/internal/resolve"
)

var (
	resolveCanonical string
	resolveRetired   []string
	resolveMode      string
	resolveNotes     string
	resolveActor     string
	resolveRenames   []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <group-id>",
	Short: "Resolve a duplicate group",
	Long:  "Merges a confirmed duplicate group: the canonical document survives, retired documents are archived with full snapshots, and an audit record is appended. Use --mode keep_all to dismiss a false-positive group; in that mode the group id is the submission id the evidence group was detected for.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rewrites, err := parseRenames(resolveRenames)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := resolve.NewEngine(st, nil)
		result := engine.Resolve(ctx, model.ResolveRequest{
			GroupID:       args[0],
			CanonicalID:   resolveCanonical,
			RetiredIDs:    resolveRetired,
			Mode:          model.ResolutionMode(resolveMode),
			Notes:         resolveNotes,
			Actor:         resolveActor,
			TitleRewrites: rewrites,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "encode result")
		}
		if !result.Success {
			return eris.Errorf("resolution failed: %s", result.ErrorCode)
		}
		return nil
	},
}

// parseRenames turns id=title pairs into a rewrite map.
func parseRenames(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	rewrites := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		id, title, ok := strings.Cut(pair, "=")
		if !ok || id == "" {
			return nil, eris.Errorf("invalid --rename %q, expected id=title", pair)
		}
		rewrites[id] = title
	}
	return rewrites, nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCanonical, "canonical", "", "id of the surviving document (required)")
	resolveCmd.Flags().StringSliceVar(&resolveRetired, "retire", nil, "ids of documents to archive")
	resolveCmd.Flags().StringVar(&resolveMode, "mode", "single", "resolution mode: single, split, or keep_all")
	resolveCmd.Flags().StringVar(&resolveNotes, "notes", "", "reviewer notes recorded in the audit trail")
	resolveCmd.Flags().StringVar(&resolveActor, "actor", "", "acting reviewer id (required)")
	resolveCmd.Flags().StringSliceVar(&resolveRenames, "rename", nil, "title rewrites as id=title pairs")
	_ = resolveCmd.MarkFlagRequired("canonical")
	_ = resolveCmd.MarkFlagRequired("actor")
	rootCmd.AddCommand(resolveCmd)
}
