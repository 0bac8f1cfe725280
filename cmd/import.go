package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rootandstem/curriculum-cli/internal/dedup"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

var importJSONPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load corpus documents from a JSON file",
	Long:  "Reads an array of corpus documents from JSON and upserts them into the catalog. Missing ids and content hashes are filled in during the load.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importJSONPath)
		if err != nil {
			return eris.Wrap(err, "read import file")
		}
		var docs []model.CorpusDocument
		if err := json.Unmarshal(data, &docs); err != nil {
			return eris.Wrap(err, "parse import file")
		}

		for i := range docs {
			if docs[i].ID == "" {
				docs[i].ID = uuid.New().String()
			}
			if docs[i].ContentHash == "" {
				docs[i].ContentHash = dedup.ContentHash(docs[i].Title, docs[i].Summary, docs[i].Content, docs[i].Metadata)
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.UpsertCorpusDocuments(ctx, docs)
		if err != nil {
			return eris.Wrap(err, "upsert corpus documents")
		}

		zap.L().Info("import complete",
			zap.Int64("upserted", n),
			zap.String("file", importJSONPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importJSONPath, "json", "", "path to JSON file (required)")
	_ = importCmd.MarkFlagRequired("json")
	rootCmd.AddCommand(importCmd)
}
