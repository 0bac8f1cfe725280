package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rootandstem/curriculum-cli/internal/dedup"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

var submitJSONPath string

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a submission from a JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(submitJSONPath)
		if err != nil {
			return eris.Wrap(err, "read submission file")
		}
		var sub model.Submission
		if err := json.Unmarshal(data, &sub); err != nil {
			return eris.Wrap(err, "parse submission file")
		}
		if sub.Title == "" {
			return eris.New("submission title is required")
		}
		if sub.SubmitterID == "" {
			return eris.New("submitter_id is required")
		}
		if sub.ContentHash == "" {
			sub.ContentHash = dedup.ContentHash(sub.Title, sub.Summary, sub.Content, sub.Metadata)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.CreateSubmission(ctx, &sub); err != nil {
			return eris.Wrap(err, "create submission")
		}

		zap.L().Info("submission created",
			zap.String("submission_id", sub.ID),
			zap.String("title", sub.Title),
			zap.Bool("has_embedding", sub.HasEmbedding()),
		)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitJSONPath, "json", "", "path to JSON file (required)")
	_ = submitCmd.MarkFlagRequired("json")
	rootCmd.AddCommand(submitCmd)
}
