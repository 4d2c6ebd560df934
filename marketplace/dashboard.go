package marketplace

import (
	"context"
	"fmt"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

/*
====================================
HOST
====================================
*/

// ListHostProperties returns the listings owned by the signed-in host.
func (a *API) ListHostProperties(ctx context.Context) ([]Property, error) {
	return call[[]Property](ctx, a, http.MethodGet, "/host/properties", nil)
}

// CreateProperty validates in and publishes it as a new listing.
func (a *API) CreateProperty(ctx context.Context, in PropertyInput) (Property, error) {
	if err := a.checkProperty(in); err != nil {
		return Property{}, err
	}
	return call[Property](ctx, a, http.MethodPost, "/host/properties", in)
}

// UpdateProperty replaces the listing id with in.
func (a *API) UpdateProperty(ctx context.Context, id string, in PropertyInput) (Property, error) {
	id, err := requireID("property", id)
	if err != nil {
		return Property{}, err
	}
	if err := a.checkProperty(in); err != nil {
		return Property{}, err
	}
	return call[Property](ctx, a, http.MethodPut, "/host/properties/"+id, in)
}

func (a *API) checkProperty(in PropertyInput) error {
	if err := a.check(in); err != nil {
		return err
	}
	if !in.PricePerNight.IsPositive() {
		return fmt.Errorf("%w: price per night must be positive", ErrInvalidInput)
	}
	return nil
}

/*
====================================
ADMIN
====================================
*/

// ListPendingKYC lists identity submissions awaiting review.
func (a *API) ListPendingKYC(ctx context.Context) ([]KYCRequest, error) {
	return call[[]KYCRequest](ctx, a, http.MethodGet, "/admin/kyc", nil, goSession.WithQuery("status", KYCPending))
}

// ReviewKYC approves or rejects submission id. A rejection needs a reason.
func (a *API) ReviewKYC(ctx context.Context, id string, decision KYCDecision) (KYCRequest, error) {
	id, err := requireID("kyc", id)
	if err != nil {
		return KYCRequest{}, err
	}
	if err := a.check(decision); err != nil {
		return KYCRequest{}, err
	}
	return call[KYCRequest](ctx, a, http.MethodPost, "/admin/kyc/"+id+"/review", decision)
}
