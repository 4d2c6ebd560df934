package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput is returned before any request is sent when an argument
// fails validation.
var ErrInvalidInput = errors.New("invalid input")

// API is safe for concurrent use when the underlying Client is.
type API struct {
	client   *goSession.Client
	validate *validator.Validate
}

// New wraps client. The client owns the session; API holds no state of its
// own.
func New(client *goSession.Client) *API {
	return &API{
		client:   client,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Client returns the underlying session client.
func (a *API) Client() *goSession.Client {
	return a.client
}

type envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// call sends one request and unwraps the data member of the envelope.
func call[T any](ctx context.Context, a *API, method, path string, body any, opts ...goSession.RequestOption) (T, error) {
	var zero T
	if a == nil || a.client == nil {
		return zero, goSession.ErrClientNotReady
	}
	resp, err := a.client.Request(ctx, method, path, body, opts...)
	if err != nil {
		return zero, err
	}
	var env envelope[T]
	if err := resp.Decode(&env); err != nil {
		return zero, err
	}
	return env.Data, nil
}

func (a *API) check(v any) error {
	if err := a.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidInput, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func requireID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty %s id", ErrInvalidInput, kind)
	}
	return url.PathEscape(id), nil
}

// Message returns the backend's explanation carried by a failed call, or
// err's text when the response had none.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *goSession.HTTPError
	if errors.As(err, &httpErr) {
		var env envelope[json.RawMessage]
		if json.Unmarshal(httpErr.Body, &env) == nil && env.Message != "" {
			return env.Message
		}
	}
	return err.Error()
}

const dateLayout = "2006-01-02"

func pageValues(q url.Values, page, size int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("page_size", strconv.Itoa(size))
	}
}
