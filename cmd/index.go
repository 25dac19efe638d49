package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/media"
	"github.com/abhisek/vidtutor/internal/ui/theme"
)

var indexCmd = &cobra.Command{
	Use:   "index <learning-item-id> <video> [<learning-item-id> <video>...]",
	Short: "Build or reuse the context index for lecture videos",
	Long: "Extracts keyframes, on-screen text and the transcript of each video and\n" +
		"stores the merged index. An index that is current for the same video and\n" +
		"extraction settings is reused.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected learning item and video pairs, got %d argument(s)", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		items := make([]contextindex.Item, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			items = append(items, contextindex.Item{LearningItemID: args[i], FileRef: args[i+1]})
		}

		var failed int
		for _, r := range s.app.Indexes.EnsureAll(cmd.Context(), items) {
			if r.Err != nil {
				failed++
				fmt.Printf("%s  %s\n", theme.Ungrounded.Render("✗ "+r.Item.LearningItemID), r.Err)
				continue
			}
			fmt.Printf("%s  %s · %d keyframes · %d segments · config %s\n",
				theme.Grounded.Render("✓ "+r.Item.LearningItemID),
				media.FormatTimestamp(r.Index.Video.DurationSeconds),
				len(r.Index.Keyframes),
				len(r.Index.Segments),
				r.Index.ConfigHash)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d index builds failed", failed, len(items))
		}
		return nil
	},
}
