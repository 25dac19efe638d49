package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/ui/report"
)

var showCmd = &cobra.Command{
	Use:   "show [learning-item-id]",
	Short: "Print a stored context index, or list all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if len(args) == 0 {
			recs, err := s.store.IndexRepo().List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(report.IndexList(recs))
			return nil
		}

		idx, err := s.app.Indexes.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON {
			data, err := contextindex.Marshal(idx)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}
		fmt.Print(report.Index(idx))
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "Print the persisted artifact instead of a table")
}
