package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/vidtutor/internal/app"
	"github.com/abhisek/vidtutor/internal/review"
	"github.com/abhisek/vidtutor/internal/ui/report"
)

var reviewCmd = &cobra.Command{
	Use:   "review <learning-item-id>",
	Short: "Generate grounded feedback for a code submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codePath, _ := cmd.Flags().GetString("code")
		submissionID, _ := cmd.Flags().GetString("submission")
		video, _ := cmd.Flags().GetString("video")
		width, _ := cmd.Flags().GetInt("width")

		code, err := os.ReadFile(codePath)
		if err != nil {
			return fmt.Errorf("read submission: %w", err)
		}
		sig, err := signatureFrom(cmd)
		if err != nil {
			return err
		}
		if submissionID == "" {
			submissionID = uuid.NewString()
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		if s.app.Review == nil {
			return fmt.Errorf("%w: set VIDTUTOR_LLM_PROVIDER and its API key", app.ErrNoProvider)
		}

		rec, err := s.app.Review.Review(cmd.Context(), review.Submission{
			ID:             submissionID,
			LearningItemID: args[0],
			VideoRef:       video,
			Code:           string(code),
			Signature:      sig,
		})
		if err != nil {
			return err
		}
		fmt.Print(report.Feedback(rec, s.cfg.Feedback, width))
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringP("code", "c", "", "Path to the submitted source file")
	reviewCmd.Flags().String("submission", "", "Submission id (default: random)")
	reviewCmd.Flags().String("video", "", "Build or refresh the index from this video first")
	reviewCmd.Flags().Int("width", report.DefaultWidth, "Render width")
	_ = reviewCmd.MarkFlagRequired("code")
	addSignatureFlags(reviewCmd)
}
