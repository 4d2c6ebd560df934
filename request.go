package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request describes one logical call. Path is relative to Config.BaseURL.
//
// Body is JSON-encoded once; RawBody with ContentType is sent verbatim
// (multipart uploads). Both are buffered so the request can be replayed
// after a session refresh.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        any
	RawBody     []byte
	ContentType string
}

// RequestOption adjusts a Request built by Client.Request and the verb helpers.
type RequestOption func(*Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(key, value)
	}
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = make(url.Values)
		}
		r.Query.Add(key, value)
	}
}

// WithQueryValues merges values into the query string.
func WithQueryValues(values url.Values) RequestOption {
	return func(r *Request) {
		if len(values) == 0 {
			return
		}
		if r.Query == nil {
			r.Query = make(url.Values, len(values))
		}
		for k, vs := range values {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

// WithRawBody sends body verbatim with the given content type instead of
// JSON-encoding Request.Body.
func WithRawBody(contentType string, body []byte) RequestOption {
	return func(r *Request) {
		r.ContentType = contentType
		r.RawBody = body
	}
}

// Response is the outcome of a 2xx attempt. A replayed request yields a
// Response identical in shape to one that never met an expired session.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	RequestID  string
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type attemptKind uint8

const (
	attemptOriginal attemptKind = iota
	attemptRetry
	attemptRefresh
)

func (k attemptKind) String() string {
	switch k {
	case attemptRetry:
		return "retry"
	case attemptRefresh:
		return "refresh"
	default:
		return "original"
	}
}

// preparedRequest is the immutable, replayable form of a Request.
type preparedRequest struct {
	method      string
	path        string
	url         string
	header      http.Header
	body        []byte
	contentType string
}

// attempt is one send of a preparedRequest. Values are never mutated; a
// replay is a new attempt derived with retry.
type attempt struct {
	req       *preparedRequest
	kind      attemptKind
	requestID string
	epoch     uint64
}

func newAttempt(req *preparedRequest, kind attemptKind, epoch uint64, requestID string) attempt {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return attempt{
		req:       req,
		kind:      kind,
		requestID: requestID,
		epoch:     epoch,
	}
}

func (a attempt) isRetry() bool {
	return a.kind == attemptRetry
}

// retry keeps the request id so the backend can correlate both sends.
func (a attempt) retry(epoch uint64) attempt {
	return attempt{
		req:       a.req,
		kind:      attemptRetry,
		requestID: a.requestID,
		epoch:     epoch,
	}
}

func (a attempt) newHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if a.req.body != nil {
		body = bytes.NewReader(a.req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, a.req.method, a.req.url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for k, vs := range a.req.header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	if a.req.contentType != "" {
		httpReq.Header.Set("Content-Type", a.req.contentType)
	}
	httpReq.Header.Set(headerRequestID, a.requestID)
	return httpReq, nil
}

const headerRequestID = "X-Request-ID"

func prepareRequest(base *url.URL, defaults http.Header, req *Request) (*preparedRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := req.Path
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: path %q must start with /", ErrInvalidRequest, path)
	}
	rel, err := url.Parse(path)
	if err != nil || rel.IsAbs() || rel.Host != "" {
		return nil, fmt.Errorf("%w: path %q is not relative", ErrInvalidRequest, path)
	}

	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + rel.Path
	// Keeps escaped separators such as %2F inside a path segment.
	u.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + rel.EscapedPath()
	q := rel.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	header := defaults.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for k, vs := range req.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	out := &preparedRequest{
		method: method,
		path:   rel.Path,
		url:    u.String(),
		header: header,
	}

	switch {
	case req.RawBody != nil:
		out.body = append([]byte(nil), req.RawBody...)
		out.contentType = req.ContentType
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
		}
		out.body = data
		out.contentType = "application/json"
	}

	return out, nil
}
