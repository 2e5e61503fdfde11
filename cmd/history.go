package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartshift/app"
	"github.com/kilianp07/smartshift/core/history"
	"github.com/kilianp07/smartshift/core/pricing"
	"github.com/kilianp07/smartshift/pkg/export"
)

var (
	summaryOnly  bool
	exportFormat string
	exportOut    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past charging sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			h := svc.Engine.History()
			sum := history.Summarize(h)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d sessions, %s kWh, %s € spent", sum.Sessions, pricing.Format(sum.TotalKWh), pricing.Format(sum.TotalSpent))
			if sum.Rated > 0 {
				fmt.Fprintf(out, ", average rating %.1f", sum.AvgRating)
			}
			fmt.Fprintln(out)
			if summaryOnly {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tSTATION\tMIN\tKWH\tPRICE\tRATING")
			for _, s := range h {
				rating := "-"
				if s.Rated() {
					rating = fmt.Sprintf("%d/5", s.Rating)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s €\t%s\n", s.ID, s.Date.In(svc.Engine.Location()).Format("2006-01-02 15:04"),
					s.StationName, s.DurationMinutes, pricing.Format(s.KWh), pricing.Format(s.TotalPrice), rating)
			}
			return tw.Flush()
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the charging history as JSON, CSV or an HTML chart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			w := cmd.OutOrStdout()
			if exportOut != "" && exportOut != "-" {
				f, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export.Write(w, export.Format(exportFormat), svc.Engine.History())
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Dump the persisted application state as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			return printJSON(cmd, svc.Engine.Snapshot())
		})
	},
}

func init() {
	historyCmd.Flags().BoolVar(&summaryOnly, "summary", false, "only print the totals")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "json, csv or html")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, stdout when empty")
	rootCmd.AddCommand(historyCmd, exportCmd, stateCmd)
}
