package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/vidtutor/internal/ui/report"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <learning-item-id>",
	Short: "Find the video moments that explain an error signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, err := signatureFrom(cmd)
		if err != nil {
			return err
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		idx, err := s.app.Indexes.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		matches, err := s.app.Resolver.Resolve(cmd.Context(), sig, idx)
		if err != nil {
			return err
		}
		fmt.Print(report.Matches(matches))
		return nil
	},
}

func init() {
	addSignatureFlags(resolveCmd)
}
