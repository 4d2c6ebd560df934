package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
)

// Values renders the filter as query parameters.
func (f PropertyFilter) Values() url.Values {
	q := url.Values{}
	if f.City != "" {
		q.Set("city", f.City)
	}
	if !f.CheckIn.IsZero() {
		q.Set("check_in", f.CheckIn.Format(dateLayout))
	}
	if !f.CheckOut.IsZero() {
		q.Set("check_out", f.CheckOut.Format(dateLayout))
	}
	if f.Guests > 0 {
		q.Set("guests", strconv.Itoa(f.Guests))
	}
	if f.MinPrice != nil {
		q.Set("min_price", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("max_price", f.MaxPrice.String())
	}
	for _, a := range f.Amenities {
		q.Add("amenity", a)
	}
	pageValues(q, f.Page, f.PageSize)
	return q
}

func (f PropertyFilter) check() error {
	if !f.CheckIn.IsZero() && !f.CheckOut.IsZero() && !f.CheckOut.After(f.CheckIn) {
		return fmt.Errorf("%w: check-out must follow check-in", ErrInvalidInput)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return fmt.Errorf("%w: min price above max price", ErrInvalidInput)
	}
	return nil
}

// SearchProperties lists properties matching f.
func (a *API) SearchProperties(ctx context.Context, f PropertyFilter) ([]Property, error) {
	if err := a.check(f); err != nil {
		return nil, err
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return call[[]Property](ctx, a, http.MethodGet, "/properties", nil, goSession.WithQueryValues(f.Values()))
}

func (a *API) GetProperty(ctx context.Context, id string) (Property, error) {
	id, err := requireID("property", id)
	if err != nil {
		return Property{}, err
	}
	return call[Property](ctx, a, http.MethodGet, "/properties/"+id, nil)
}

// Values renders the filter as query parameters.
func (f GuideFilter) Values() url.Values {
	q := url.Values{}
	if f.City != "" {
		q.Set("city", f.City)
	}
	if f.Language != "" {
		q.Set("language", f.Language)
	}
	if !f.Date.IsZero() {
		q.Set("date", f.Date.Format(dateLayout))
	}
	pageValues(q, f.Page, f.PageSize)
	return q
}

// SearchGuides lists local guides matching f.
func (a *API) SearchGuides(ctx context.Context, f GuideFilter) ([]Guide, error) {
	if err := a.check(f); err != nil {
		return nil, err
	}
	return call[[]Guide](ctx, a, http.MethodGet, "/guides", nil, goSession.WithQueryValues(f.Values()))
}

// GetGuide returns guide id.
func (a *API) GetGuide(ctx context.Context, id string) (Guide, error) {
	id, err := requireID("guide", id)
	if err != nil {
		return Guide{}, err
	}
	return call[Guide](ctx, a, http.MethodGet, "/guides/"+id, nil)
}
