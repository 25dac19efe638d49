package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/vidtutor/internal/ui/report"
)

var historyCmd = &cobra.Command{
	Use:   "history <learning-item-id>",
	Short: "List feedback recorded for a learning item, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		id, _ := cmd.Flags().GetString("id")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if id != "" {
			rec, err := s.app.Records.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("feedback record %s not found", id)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		recs, err := s.app.Records.List(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		fmt.Print(report.History(recs))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of records to show")
	historyCmd.Flags().String("id", "", "Print one record as JSON")
}
