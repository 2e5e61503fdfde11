package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/smartshift/app"
	"github.com/kilianp07/smartshift/core/availability"
	"github.com/kilianp07/smartshift/core/catalog"
	"github.com/kilianp07/smartshift/core/model"
	"github.com/kilianp07/smartshift/core/pricing"
	"github.com/kilianp07/smartshift/core/routing"
)

var (
	stationFilter catalog.Filter
	nearFlag      string
	limitFlag     int
	dayFlag       int
	durationFlag  int
	fromFlag      string
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List charging stations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			list := stationFilter.Apply(svc.Catalog.Stations())
			if nearFlag != "" {
				origin, err := parseCoordinates(nearFlag)
				if err != nil {
					return err
				}
				list = catalog.Nearest(list, origin, limitFlag)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tPOWER\tPRICE\tFEE\tSTATUS")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f kW\t%.0f ct/kWh\t%s €\t%s\n",
					s.ID, s.Name, s.Connector, s.PowerKW, s.PriceCents, pricing.Format(s.ParkingFee), s.Status)
			}
			return tw.Flush()
		})
	},
}

var slotsCmd = &cobra.Command{
	Use:   "slots <station-id>",
	Short: "Show the start times of a station",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			st, err := station(svc, args[0])
			if err != nil {
				return err
			}
			e := svc.Engine
			now := e.Now().In(e.Location())
			cands, err := e.Resolver().Resolve(st, dayFlag, durationFlag, now)
			if err != nil {
				return err
			}
			return writeSlots(cmd.OutOrStdout(), st.Name, availability.DateForOffset(now, dayFlag), durationFlag, cands)
		})
	},
}

// noStartTimes is printed when nothing can be booked for the query.
const noStartTimes = "no start times available"

func writeSlots(w io.Writer, name, date string, minutes int, cands []availability.Candidate) error {
	fmt.Fprintf(w, "%s on %s, %d min\n", name, date, minutes)
	if len(cands) == 0 {
		_, err := fmt.Fprintln(w, noStartTimes)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range cands {
		state := "free"
		if !c.Fit {
			state = string(c.Reason)
		}
		fmt.Fprintf(tw, "%s\t%s\n", c.Time, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(availability.Fitting(cands)) == 0 {
		_, err := fmt.Fprintf(w, "%s for %d min\n", noStartTimes, minutes)
		return err
	}
	return nil
}

var quoteCmd = &cobra.Command{
	Use:   "quote <station-id>",
	Short: "Price a reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ context.Context, svc *app.Service) error {
			st, err := station(svc, args[0])
			if err != nil {
				return err
			}
			if !model.ValidDuration(durationFlag) {
				return fmt.Errorf("%w: %d", availability.ErrInvalidDuration, durationFlag)
			}
			b := svc.Engine.Calculator().Quote(st, durationFlag)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s, %d min (%d min billed after %d min start-up)\n", st.Name, b.DurationMinutes, b.EffectiveMinutes, b.BufferMinutes)
			fmt.Fprintf(out, "parking fee  %8s €\n", pricing.Format(b.ParkingFee))
			fmt.Fprintf(out, "energy       %8s € (%s kWh)\n", pricing.Format(b.EnergyCost), pricing.Format(b.EnergyKWh))
			fmt.Fprintf(out, "total        %8s €\n", pricing.Format(b.Total))
			return nil
		})
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <station-id>",
	Short: "Show the driving route to a station",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			st, err := station(svc, args[0])
			if err != nil {
				return err
			}
			from, err := parseCoordinates(fromFlag)
			if err != nil {
				return err
			}
			r := routing.Info(ctx, svc.Router, from, st.Position())
			suffix := ""
			if r.Estimated {
				suffix = " (estimated)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s km, %d min%s\n", st.Name, r.DistanceKm, r.DurationMinutes, suffix)
			return nil
		})
	},
}

func init() {
	stationsCmd.Flags().BoolVar(&stationFilter.OnlyAvailable, "available", false, "only available stations")
	stationsCmd.Flags().Float64Var(&stationFilter.MinPowerKW, "min-power", 0, "minimum power in kW")
	stationsCmd.Flags().StringVar(&stationFilter.Connector, "type", "", "connector type (Typ 2, CCS)")
	stationsCmd.Flags().StringVar(&nearFlag, "near", "", "order by distance from lat,lng")
	stationsCmd.Flags().IntVar(&limitFlag, "limit", -1, "maximum number of stations with --near")

	for _, c := range []*cobra.Command{slotsCmd, quoteCmd, reserveCmd, walkupCmd} {
		c.Flags().IntVarP(&durationFlag, "duration", "d", 60, "charging duration in minutes")
	}
	for _, c := range []*cobra.Command{slotsCmd, reserveCmd} {
		c.Flags().IntVar(&dayFlag, "day", 0, "day offset: 0 today, 1 tomorrow, 2 the day after")
	}
	routeCmd.Flags().StringVar(&fromFlag, "from", "48.1374,11.5755", "start position lat,lng")

	rootCmd.AddCommand(stationsCmd, slotsCmd, quoteCmd, routeCmd)
}

func station(svc *app.Service, id string) (model.Station, error) {
	st, ok := svc.Catalog.Station(id)
	if !ok {
		return model.Station{}, fmt.Errorf("%w: %s", catalog.ErrStationNotFound, id)
	}
	return st, nil
}

func parseCoordinates(s string) (model.Coordinates, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return model.Coordinates{}, fmt.Errorf("coordinates %q: want lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("latitude %q: %w", lat, err)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("longitude %q: %w", lng, err)
	}
	return model.Coordinates{Lat: la, Lng: ln}, nil
}
