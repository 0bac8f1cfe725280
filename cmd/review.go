package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rootandstem/curriculum-cli/internal/model"
	"github.com/rootandstem/curriculum-cli/internal/store"
)

var reviewerID string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage the submission review lifecycle",
}

var reviewClaimCmd = &cobra.Command{
	Use:   "claim <submission-id>",
	Short: "Claim a submitted submission for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewTransition(cmd, args[0], "claimed", func(ctx context.Context, st store.Store) error {
			return st.ClaimReview(ctx, args[0], reviewerID)
		})
	},
}

var reviewReleaseCmd = &cobra.Command{
	Use:   "release <submission-id>",
	Short: "Release a claimed submission back to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewTransition(cmd, args[0], "released", func(ctx context.Context, st store.Store) error {
			return st.ReleaseReview(ctx, args[0], reviewerID)
		})
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <submission-id>",
	Short: "Approve an in-review submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewTransition(cmd, args[0], "approved", func(ctx context.Context, st store.Store) error {
			return st.UpdateSubmissionStatus(ctx, args[0], model.SubmissionStatusApproved)
		})
	},
}

var reviewReviseCmd = &cobra.Command{
	Use:   "revise <submission-id>",
	Short: "Send an in-review submission back for revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewTransition(cmd, args[0], "sent back for revision", func(ctx context.Context, st store.Store) error {
			return st.UpdateSubmissionStatus(ctx, args[0], model.SubmissionStatusNeedsRevision)
		})
	},
}

func reviewTransition(cmd *cobra.Command, id, verb string, fn func(context.Context, store.Store) error) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := fn(ctx, st); err != nil {
		return eris.Wrapf(err, "review %s", id)
	}
	zap.L().Info("submission "+verb,
		zap.String("submission_id", id),
		zap.String("reviewer_id", reviewerID),
	)
	return nil
}

func init() {
	reviewCmd.PersistentFlags().StringVar(&reviewerID, "reviewer", "", "reviewer identifier (required)")
	_ = reviewCmd.MarkPersistentFlagRequired("reviewer")
	reviewCmd.AddCommand(reviewClaimCmd, reviewReleaseCmd, reviewApproveCmd, reviewReviseCmd)
	rootCmd.AddCommand(reviewCmd)
}
