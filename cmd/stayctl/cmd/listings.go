package cmd

import (
	"errors"
	"fmt"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/marketplace"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newPropertiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Browse property listings",
	}

	var (
		f                  marketplace.PropertyFilter
		checkIn, checkOut  string
		minPrice, maxPrice string
	)
	search := &cobra.Command{
		Use:   "search",
		Short: "Search properties",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if f.CheckIn, err = parseDate("check-in", checkIn); err != nil {
				return err
			}
			if f.CheckOut, err = parseDate("check-out", checkOut); err != nil {
				return err
			}
			if f.MinPrice, err = parsePrice("min-price", minPrice); err != nil {
				return err
			}
			if f.MaxPrice, err = parsePrice("max-price", maxPrice); err != nil {
				return err
			}
			props, err := a.api.SearchProperties(cmd.Context(), f)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), props)
		},
	}
	fl := search.Flags()
	fl.StringVar(&f.City, "city", "", "city")
	fl.StringVar(&checkIn, "check-in", "", "check-in date (YYYY-MM-DD)")
	fl.StringVar(&checkOut, "check-out", "", "check-out date (YYYY-MM-DD)")
	fl.IntVar(&f.Guests, "guests", 0, "number of guests")
	fl.StringVar(&minPrice, "min-price", "", "minimum nightly price")
	fl.StringVar(&maxPrice, "max-price", "", "maximum nightly price")
	fl.StringSliceVar(&f.Amenities, "amenity", nil, "required amenity (repeatable)")
	fl.IntVar(&f.Page, "page", 0, "result page")
	fl.IntVar(&f.PageSize, "page-size", 0, "results per page (max 100)")

	cmd.AddCommand(search)
	return cmd
}

func newBookingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Manage your bookings",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List your bookings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bookings, err := a.api.ListMyBookings(cmd.Context(), status)
			if err != nil {
				if errors.Is(err, goSession.ErrSessionExpired) {
					return fmt.Errorf("not logged in: %w", err)
				}
				return err
			}
			return a.render(cmd.OutOrStdout(), bookings)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (pending, confirmed, cancelled)")

	cancel := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.api.CancelBooking(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("cancel: %s", marketplace.Message(err))
			}
			return a.render(cmd.OutOrStdout(), b)
		},
	}

	cmd.AddCommand(list, cancel)
	return cmd
}

func parseDate(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

func parsePrice(flag, v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &d, nil
}
