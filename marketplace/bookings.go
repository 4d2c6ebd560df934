package marketplace

import (
	"context"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// BookProperty requests a stay. The backend prices it and decides
// availability; the returned booking carries the total.
func (a *API) BookProperty(ctx context.Context, in PropertyBookingRequest) (Booking, error) {
	if err := a.check(in); err != nil {
		return Booking{}, err
	}
	return call[Booking](ctx, a, http.MethodPost, "/bookings/properties", in)
}

// BookGuide requests a guided tour.
func (a *API) BookGuide(ctx context.Context, in GuideBookingRequest) (Booking, error) {
	if err := a.check(in); err != nil {
		return Booking{}, err
	}
	return call[Booking](ctx, a, http.MethodPost, "/bookings/guides", in)
}

// ListMyBookings lists the caller's bookings, optionally filtered by status.
func (a *API) ListMyBookings(ctx context.Context, status string) ([]Booking, error) {
	var opts []goSession.RequestOption
	if status != "" {
		opts = append(opts, goSession.WithQuery("status", status))
	}
	return call[[]Booking](ctx, a, http.MethodGet, "/bookings/me", nil, opts...)
}

// CancelBooking cancels booking id and returns its final state.
func (a *API) CancelBooking(ctx context.Context, id string) (Booking, error) {
	id, err := requireID("booking", id)
	if err != nil {
		return Booking{}, err
	}
	return call[Booking](ctx, a, http.MethodPost, "/bookings/"+id+"/cancel", nil)
}
