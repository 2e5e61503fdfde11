package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartshift/app"
	"github.com/kilianp07/smartshift/core/booking"
	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/core/pricing"
	"github.com/kilianp07/smartshift/core/session"
)

var reserveCmd = &cobra.Command{
	Use:   "reserve <station-id> <HH:MM>",
	Short: "Book a start time at a station",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			st, err := station(svc, args[0])
			if err != nil {
				return err
			}
			e := svc.Engine
			o := booking.NewOverlay(st, e, e.Resolver(), e.Calculator())
			if err := o.SelectDay(dayFlag); err != nil {
				return err
			}
			if err := o.SelectDuration(durationFlag); err != nil {
				return err
			}
			if err := o.SelectSlot(args[1]); err != nil {
				return err
			}
			if err := o.Confirm(); err != nil {
				return err
			}
			r, err := o.Commit(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reserved %s at %s on %s %s for %d min, estimated %s €\n",
				r.ID, r.StationName, r.Date, r.StartTime, r.DurationMinutes, pricing.Format(r.EstimatedPrice))
			return nil
		})
	},
}

var reservationsCmd = &cobra.Command{
	Use:   "reservations",
	Short: "List open reservations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATION\tDATE\tSTART\tMIN\tPRICE")
			for _, r := range svc.Engine.Reservations() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s €\n", r.ID, r.StationName, r.Date, r.StartTime, r.DurationMinutes, pricing.Format(r.EstimatedPrice))
			}
			return tw.Flush()
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <reservation-id>",
	Short: "Cancel a reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			if err := svc.Engine.Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [reservation-id]",
	Short: "Simulate a successful QR scan at the station",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hint := ""
		if len(args) == 1 {
			hint = args[0]
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			s, err := svc.Engine.ScanSuccess(ctx, hint)
			if errors.Is(err, engine.ErrNoReservation) {
				fmt.Fprintln(cmd.OutOrStdout(), engine.NoticeNoReservation)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "charging at %s until %s (session %s)\n",
				s.StationName, s.EndTime.In(svc.Engine.Location()).Format("15:04"), s.ID)
			return nil
		})
	},
}

var walkupCmd = &cobra.Command{
	Use:   "walkup <station-id>",
	Short: "Start charging without a reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			s, err := svc.Engine.StartWalkUp(ctx, args[0], durationFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "charging at %s until %s (session %s)\n",
				s.StationName, s.EndTime.In(svc.Engine.Location()).Format("15:04"), s.ID)
			return nil
		})
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the running charging session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			s, ok := svc.Engine.ActiveSession()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no active charging session")
				return nil
			}
			now := svc.Engine.Now()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s elapsed, %.0f%% of %d min, %.0f kW at %.0f ct/kWh\n",
				s.StationName, session.FormatElapsed(session.Elapsed(s, now)), session.Progress(s, now)*100,
				s.DurationMinutes, s.PowerKW, s.PriceCents)
			return nil
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running session and bill it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			done, err := svc.Engine.Stop(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %s kWh, %s €\n", done.ID, pricing.Format(done.KWh), pricing.Format(done.TotalPrice))
			return nil
		})
	},
}

var feedbackFlag string

var reviewCmd = &cobra.Command{
	Use:   "review <session-id> <rating>",
	Short: "Rate a past charging session from 1 to 5",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("rating %q: %w", args[1], err)
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			cs, err := svc.Engine.Review(ctx, args[0], rating, feedbackFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rated %s at %s: %d/5\n", cs.ID, cs.StationName, cs.Rating)
			return nil
		})
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&feedbackFlag, "feedback", "f", "", "optional comment")
	rootCmd.AddCommand(reserveCmd, reservationsCmd, cancelCmd, scanCmd, walkupCmd, sessionCmd, stopCmd, reviewCmd)
}
