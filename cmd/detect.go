package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rootandstem/curriculum-cli/internal/config"
	"github.com/rootandstem/curriculum-cli/internal/dedup"
	"github.com/rootandstem/curriculum-cli/internal/model"
	"github.com/rootandstem/curriculum-cli/internal/store"
)

var (
	detectAll  bool
	detectJSON bool
)

var detectCmd = &cobra.Command{
	Use:   "detect [submission-id]",
	Short: "Run duplicate detection for a submission",
	Long:  "Scores a submission against the published corpus and persists the evidence set. With --all, processes every submission in the submitted state.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := config.ValidateDetection(cfg.Detection); err != nil {
			return err
		}
		if !detectAll && len(args) == 0 {
			return eris.New("a submission id is required unless --all is set")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		detector := dedup.NewDetector(st, cfg.Detection)

		var subs []model.Submission
		if detectAll {
			subs, err = st.ListSubmissions(ctx, store.SubmissionFilter{Status: model.SubmissionStatusSubmitted})
			if err != nil {
				return err
			}
		} else {
			sub, err := st.GetSubmission(ctx, args[0])
			if err != nil {
				return err
			}
			subs = []model.Submission{*sub}
		}

		reports := make([]*model.DetectionReport, 0, len(subs))
		for i := range subs {
			report, err := detector.Run(ctx, &subs[i])
			if err != nil {
				return eris.Wrapf(err, "detect submission %s", subs[i].ID)
			}
			reports = append(reports, report)
		}

		if detectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}

		for _, r := range reports {
			zap.L().Info("detection report",
				zap.String("submission_id", r.SubmissionID),
				zap.Bool("degraded", r.Degraded),
				zap.Bool("dismissed", r.Dismissed),
				zap.Int("candidates", r.TotalCandidates),
				zap.Int("persisted", r.Persisted),
				zap.Duration("duration", r.Duration),
			)
			for _, rec := range r.Records {
				zap.L().Info("match",
					zap.String("document_id", rec.DocumentID),
					zap.String("title", rec.DocumentTitle),
					zap.Float64("score", rec.CombinedScore),
					zap.String("tier", string(rec.Tier)),
				)
			}
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectAll, "all", false, "process every submitted submission")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "emit reports as JSON to stdout")
	rootCmd.AddCommand(detectCmd)
}
