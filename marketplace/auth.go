package marketplace

import (
	"context"
	"net/http"
)

// Login starts a session. A wrong password is returned as a
// goSession.ErrUnauthorized error and never triggers a session refresh.
func (a *API) Login(ctx context.Context, in Credentials) (User, error) {
	if err := a.check(in); err != nil {
		return User{}, err
	}
	return call[User](ctx, a, http.MethodPost, "/auth/login", in)
}

// Signup creates an account and starts its session.
func (a *API) Signup(ctx context.Context, in SignupRequest) (User, error) {
	if err := a.check(in); err != nil {
		return User{}, err
	}
	return call[User](ctx, a, http.MethodPost, "/auth/signup", in)
}

// Logout ends the session on both sides.
func (a *API) Logout(ctx context.Context) error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Logout(ctx)
}

// Me returns the signed-in user.
func (a *API) Me(ctx context.Context) (User, error) {
	return call[User](ctx, a, http.MethodGet, "/users/me", nil)
}
