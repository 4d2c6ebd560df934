package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authtest"
	"github.com/shopspring/decimal"
)

type fixture struct {
	srv *authtest.Server
	api *API

	mu      sync.Mutex
	queries []string
	paths   []string
	bodies  []string
	uploads []string
	calls   int
}

func newFixture(t *testing.T, role string) *fixture {
	t.Helper()
	srv, err := authtest.Start(authtest.Options{
		Users: []authtest.User{{Name: "Lena", Email: "lena@example.com", Password: "correct-password-123", Role: role}},
	})
	if err != nil {
		t.Fatalf("start backend: %v", err)
	}
	t.Cleanup(srv.Close)

	f := &fixture{srv: srv}
	f.mount()

	client, err := goSession.New().WithBaseURL(srv.URL).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)
	f.api = New(client)

	if _, err := f.api.Login(context.Background(), Credentials{Email: "lena@example.com", Password: "correct-password-123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return f
}

func (f *fixture) record(r *http.Request) {
	f.mu.Lock()
	f.calls++
	f.queries = append(f.queries, r.URL.RawQuery)
	f.paths = append(f.paths, r.Method+" "+r.URL.EscapedPath())
	f.mu.Unlock()
}

// recordBody records r and decodes its JSON body into v, keeping the raw text.
func (f *fixture) recordBody(r *http.Request, v any) error {
	f.record(r)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.bodies = append(f.bodies, string(raw))
	f.mu.Unlock()
	return json.Unmarshal(raw, v)
}

func (f *fixture) last() (path, query, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.paths); n > 0 {
		path, query = f.paths[n-1], f.queries[n-1]
	}
	if n := len(f.bodies); n > 0 {
		body = f.bodies[n-1]
	}
	return path, query, body
}

func (f *fixture) mount() {
	f.srv.HandleProtected("GET /properties/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		authtest.WriteData(w, http.StatusOK, Property{
			ID:            r.PathValue("id"),
			Title:         "Cliff house",
			City:          "Goa",
			PricePerNight: decimal.RequireFromString("129.90"),
			MaxGuests:     4,
		}, "")
	})
	f.srv.HandleProtected("GET /properties", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		authtest.WriteData(w, http.StatusOK, []Property{{ID: "p-1", City: r.URL.Query().Get("city")}}, "")
	})
	f.srv.HandleProtected("GET /guides", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		authtest.WriteData(w, http.StatusOK, []Guide{{ID: "g-1", Languages: []string{r.URL.Query().Get("language")}}}, "")
	})
	f.srv.HandleProtected("POST /bookings/properties", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var in PropertyBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			authtest.WriteError(w, http.StatusBadRequest, "bad body")
			return
		}
		nights := int64(in.CheckOut.Sub(in.CheckIn).Hours() / 24)
		authtest.WriteData(w, http.StatusCreated, Booking{
			ID:        "b-1",
			Kind:      "property",
			ListingID: in.PropertyID,
			Status:    BookingPending,
			Start:     in.CheckIn,
			End:       in.CheckOut,
			Guests:    in.Guests,
			Total:     decimal.RequireFromString("129.90").Mul(decimal.NewFromInt(nights)),
		}, "booking requested")
	})
	f.srv.HandleProtected("GET /guides/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		authtest.WriteData(w, http.StatusOK, Guide{
			ID:         r.PathValue("id"),
			Name:       "Arjun",
			City:       "Hampi",
			HourlyRate: decimal.RequireFromString("25.50"),
		}, "")
	})
	f.srv.HandleProtected("POST /bookings/guides", func(w http.ResponseWriter, r *http.Request) {
		var in GuideBookingRequest
		if err := f.recordBody(r, &in); err != nil {
			authtest.WriteError(w, http.StatusBadRequest, "bad body")
			return
		}
		authtest.WriteData(w, http.StatusCreated, Booking{
			ID:        "b-2",
			Kind:      "guide",
			ListingID: in.GuideID,
			Status:    BookingPending,
			Start:     in.Date,
			End:       in.Date.Add(time.Duration(in.Hours) * time.Hour),
			Guests:    in.Guests,
			Total:     decimal.RequireFromString("25.50").Mul(decimal.NewFromInt(int64(in.Hours))),
		}, "booking requested")
	})
	f.srv.HandleProtected("GET /bookings/me", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		status := r.URL.Query().Get("status")
		if status != "" {
			authtest.WriteData(w, http.StatusOK, []Booking{{ID: "b-1", Status: status}}, "")
			return
		}
		authtest.WriteData(w, http.StatusOK, []Booking{{ID: "b-1", Status: BookingConfirmed}, {ID: "b-2", Status: BookingCancelled}}, "")
	})
	f.srv.HandleProtected("GET /users/profile", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		p, _ := authtest.PrincipalFromContext(r.Context())
		authtest.WriteData(w, http.StatusOK, Profile{
			User:      User{ID: p.UserID, Name: "Lena", Email: "lena@example.com", Role: p.Role},
			Phone:     "+919800000000",
			KYCStatus: KYCNone,
		}, "")
	})
	f.srv.HandleProtected("PATCH /users/profile", func(w http.ResponseWriter, r *http.Request) {
		var in ProfileUpdate
		if err := f.recordBody(r, &in); err != nil {
			authtest.WriteError(w, http.StatusBadRequest, "bad body")
			return
		}
		out := Profile{User: User{Name: "Lena", Email: "lena@example.com"}, Phone: "+919800000000"}
		if in.Name != nil {
			out.Name = *in.Name
		}
		if in.Phone != nil {
			out.Phone = *in.Phone
		}
		authtest.WriteData(w, http.StatusOK, out, "profile updated")
	})
	f.srv.HandleProtected("GET /host/properties", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		p, _ := authtest.PrincipalFromContext(r.Context())
		if p.Role != authtest.RoleHost {
			authtest.WriteError(w, http.StatusForbidden, "hosts only")
			return
		}
		authtest.WriteData(w, http.StatusOK, []Property{{ID: "p-1", HostID: p.UserID, Title: "Cliff house"}}, "")
	})
	f.srv.HandleProtected("PUT /host/properties/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in PropertyInput
		if err := f.recordBody(r, &in); err != nil {
			authtest.WriteError(w, http.StatusBadRequest, "bad body")
			return
		}
		authtest.WriteData(w, http.StatusOK, Property{
			ID:            r.PathValue("id"),
			Title:         in.Title,
			City:          in.City,
			PricePerNight: in.PricePerNight,
			MaxGuests:     in.MaxGuests,
		}, "")
	})
	f.srv.HandleProtected("POST /bookings/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		authtest.WriteError(w, http.StatusConflict, "booking already started")
	})
	f.srv.HandleProtected("GET /admin/kyc", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		p, _ := authtest.PrincipalFromContext(r.Context())
		if p.Role != authtest.RoleAdmin {
			authtest.WriteError(w, http.StatusForbidden, "admin only")
			return
		}
		authtest.WriteData(w, http.StatusOK, []KYCRequest{{ID: "k-1", Status: r.URL.Query().Get("status")}}, "")
	})
	f.srv.HandleProtected("POST /users/kyc", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			authtest.WriteError(w, http.StatusBadRequest, "bad form")
			return
		}
		file, _, err := r.FormFile("document")
		if err != nil {
			authtest.WriteError(w, http.StatusBadRequest, "missing document")
			return
		}
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploads = append(f.uploads, r.FormValue("document_type")+":"+string(data))
		f.mu.Unlock()
		authtest.WriteData(w, http.StatusAccepted, KYCRequest{ID: "k-9", DocumentType: r.FormValue("document_type"), Status: KYCPending}, "")
	})
}

func (f *fixture) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestGetPropertyRecoversExpiredSession(t *testing.T) {
	f := newFixture(t, RoleTraveler)
	f.srv.ExpireSessions()

	p, err := f.api.GetProperty(context.Background(), "123")
	if err != nil {
		t.Fatalf("expected property after refresh, got %v", err)
	}
	if p.ID != "123" || !p.PricePerNight.Equal(decimal.RequireFromString("129.9")) {
		t.Fatalf("unexpected property %+v", p)
	}
	if f.srv.RefreshCalls() != 1 {
		t.Fatalf("expected one refresh, got %d", f.srv.RefreshCalls())
	}
}

func TestSearchPropertiesSendsFilter(t *testing.T) {
	f := newFixture(t, RoleTraveler)
	minPrice := decimal.NewFromInt(50)
	props, err := f.api.SearchProperties(context.Background(), PropertyFilter{
		City:      "Goa",
		CheckIn:   time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		CheckOut:  time.Date(2026, 12, 23, 0, 0, 0, 0, time.UTC),
		Guests:    2,
		MinPrice:  &minPrice,
		Amenities: []string{"wifi", "pool"},
		PageSize:  20,
	})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(props) != 1 || props[0].City != "Goa" {
		t.Fatalf("unexpected results %+v", props)
	}
	want := "amenity=wifi&amenity=pool&check_in=2026-12-20&check_out=2026-12-23&city=Goa&guests=2&min_price=50&page_size=20"
	if got := f.queries[len(f.queries)-1]; got != want {
		t.Fatalf("unexpected query\n got %s\nwant %s", got, want)
	}
}

func TestSearchRejectsInvertedFilter(t *testing.T) {
	f := newFixture(t, RoleTraveler)
	lo, hi := decimal.NewFromInt(200), decimal.NewFromInt(100)

	_, err := f.api.SearchProperties(context.Background(), PropertyFilter{MinPrice: &lo, MaxPrice: &hi})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	_, err = f.api.SearchGuides(context.Background(), GuideFilter{PageSize: 500})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for page size, got %v", err)
	}
	if f.callCount() != 0 {
		t.Fatalf("expected no backend calls, got %d", f.callCount())
	}
}

func TestBookPropertyValidatesAndPrices(t *testing.T) {
	f := newFixture(t, RoleTraveler)
	in := PropertyBookingRequest{
		PropertyID: "p-1",
		CheckIn:    time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2026, 12, 19, 0, 0, 0, 0, time.UTC),
		Guests:     2,
	}
	if _, err := f.api.BookProperty(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	in.CheckOut = time.Date(2026, 12, 23, 0, 0, 0, 0, time.UTC)
	f.srv.ExpireSessions()
	b, err := f.api.BookProperty(context.Background(), in)
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if b.Status != BookingPending || !b.Total.Equal(decimal.RequireFromString("389.70")) {
		t.Fatalf("unexpected booking %+v", b)
	}
	if f.callCount() != 1 {
		t.Fatalf("expected the booking handler to run once, got %d", f.callCount())
	}
}

func TestCancelBookingSurfacesBackendMessage(t *testing.T) {
	f := newFixture(t, RoleTraveler)

	_, err := f.api.CancelBooking(context.Background(), "b-1")
	if !errors.Is(err, goSession.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := Message(err); got != "booking already started" {
		t.Fatalf("unexpected message %q", got)
	}
	if _, err := f.api.CancelBooking(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank id, got %v", err)
	}
}

func TestAdminKYCRequiresRole(t *testing.T) {
	traveler := newFixture(t, RoleTraveler)
	_, err := traveler.api.ListPendingKYC(context.Background())
	if !errors.Is(err, goSession.ErrForbidden) || Message(err) != "admin only" {
		t.Fatalf("expected forbidden with message, got %v", err)
	}
	if traveler.srv.RefreshCalls() != 0 {
		t.Fatal("403 must not trigger a refresh")
	}

	admin := newFixture(t, RoleAdmin)
	pending, err := admin.api.ListPendingKYC(context.Background())
	if err != nil || len(pending) != 1 || pending[0].Status != KYCPending {
		t.Fatalf("unexpected pending list %+v (%v)", pending, err)
	}
	if _, err := admin.api.ReviewKYC(context.Background(), "k-1", KYCDecision{Approve: false}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected rejection without reason to be refused, got %v", err)
	}
}

func TestSubmitKYCReplaysMultipartUpload(t *testing.T) {
	f := newFixture(t, RoleTraveler)
	f.srv.ExpireSessions()

	req, err := f.api.SubmitKYC(context.Background(), KYCSubmission{
		DocumentType:   "passport",
		DocumentNumber: "X1234567",
		FileName:       "passport.pdf",
	}, strings.NewReader("%PDF-1.7 scan"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if req.Status != KYCPending || req.DocumentType != "passport" {
		t.Fatalf("unexpected kyc request %+v", req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.uploads) != 1 || f.uploads[0] != "passport:%PDF-1.7 scan" {
		t.Fatalf("expected the replayed upload intact, got %v", f.uploads)
	}
}

func TestMeAndSignup(t *testing.T) {
	f := newFixture(t, RoleHost)
	me, err := f.api.Me(context.Background())
	if err != nil || me.Role != RoleHost || me.Email != "lena@example.com" {
		t.Fatalf("unexpected me %+v (%v)", me, err)
	}

	if _, err := f.api.Signup(context.Background(), SignupRequest{Name: "Ola", Email: "not-an-email", Password: "long-enough"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	u, err := f.api.Signup(context.Background(), SignupRequest{Name: "Ola", Email: "ola@example.com", Password: "long-enough", Role: RoleGuide})
	if err != nil || u.Role != RoleGuide {
		t.Fatalf("unexpected signup %+v (%v)", u, err)
	}
	if err := f.api.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.api.Me(context.Background()); !errors.Is(err, goSession.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after logout, got %v", err)
	}
}

func TestCreatePropertyRequiresPositivePrice(t *testing.T) {
	f := newFixture(t, RoleHost)
	_, err := f.api.CreateProperty(context.Background(), PropertyInput{Title: "Loft", City: "Pune", MaxGuests: 2})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetGuideEscapesID(t *testing.T) {
	f := newFixture(t, RoleTraveler)

	g, err := f.api.GetGuide(context.Background(), "hampi/7")
	if err != nil {
		t.Fatalf("get guide: %v", err)
	}
	if g.ID != "hampi/7" || !g.HourlyRate.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("unexpected guide %+v", g)
	}
	if path, _, _ := f.last(); path != "GET /guides/hampi%2F7" {
		t.Fatalf("expected escaped id in path, got %q", path)
	}

	if _, err := f.api.GetGuide(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty id, got %v", err)
	}
	if f.callCount() != 1 {
		t.Fatalf("expected one backend call, got %d", f.callCount())
	}
}

func TestBookGuideValidatesAndSendsBody(t *testing.T) {
	f := newFixture(t, RoleTraveler)
	date := time.Date(2026, 12, 21, 9, 0, 0, 0, time.UTC)

	invalid := []GuideBookingRequest{
		{Date: date, Hours: 4, Guests: 2},
		{GuideID: "g-7", Hours: 4, Guests: 2},
		{GuideID: "g-7", Date: date, Hours: 0, Guests: 2},
		{GuideID: "g-7", Date: date, Hours: 4, Guests: 31},
	}
	for _, in := range invalid {
		if _, err := f.api.BookGuide(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", in, err)
		}
	}
	if f.callCount() != 0 {
		t.Fatalf("expected no backend calls, got %d", f.callCount())
	}

	f.srv.ExpireSessions()
	b, err := f.api.BookGuide(context.Background(), GuideBookingRequest{GuideID: "g-7", Date: date, Hours: 4, Guests: 2})
	if err != nil {
		t.Fatalf("book guide: %v", err)
	}
	if b.Kind != "guide" || b.ListingID != "g-7" || !b.Total.Equal(decimal.RequireFromString("102")) {
		t.Fatalf("unexpected booking %+v", b)
	}
	path, _, body := f.last()
	if path != "POST /bookings/guides" {
		t.Fatalf("unexpected route %q", path)
	}
	want := `{"guide_id":"g-7","date":"2026-12-21T09:00:00Z","hours":4,"guests":2}`
	if body != want {
		t.Fatalf("unexpected body\n got %s\nwant %s", body, want)
	}
	if f.srv.RefreshCalls() != 1 {
		t.Fatalf("expected one refresh, got %d", f.srv.RefreshCalls())
	}
}

func TestListMyBookingsStatusFilter(t *testing.T) {
	f := newFixture(t, RoleTraveler)

	confirmed, err := f.api.ListMyBookings(context.Background(), BookingConfirmed)
	if err != nil || len(confirmed) != 1 || confirmed[0].Status != BookingConfirmed {
		t.Fatalf("unexpected filtered bookings %+v (%v)", confirmed, err)
	}
	if path, query, _ := f.last(); path != "GET /bookings/me" || query != "status=confirmed" {
		t.Fatalf("unexpected request %s ?%s", path, query)
	}

	all, err := f.api.ListMyBookings(context.Background(), "")
	if err != nil || len(all) != 2 {
		t.Fatalf("unexpected bookings %+v (%v)", all, err)
	}
	if _, query, _ := f.last(); query != "" {
		t.Fatalf("expected no query without status, got %q", query)
	}
}

func TestProfileReadAndPartialUpdate(t *testing.T) {
	f := newFixture(t, RoleGuide)

	p, err := f.api.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Email != "lena@example.com" || p.Role != RoleGuide || p.KYCStatus != KYCNone {
		t.Fatalf("unexpected profile %+v", p)
	}

	badPhone := "98000"
	if _, err := f.api.UpdateProfile(context.Background(), ProfileUpdate{Phone: &badPhone}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for phone, got %v", err)
	}

	name := "Lena K"
	updated, err := f.api.UpdateProfile(context.Background(), ProfileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Name != name || updated.Phone != "+919800000000" {
		t.Fatalf("unexpected updated profile %+v", updated)
	}
	path, _, body := f.last()
	if path != "PATCH /users/profile" || body != `{"name":"Lena K"}` {
		t.Fatalf("expected only the changed field, got %s %s", path, body)
	}
}

func TestHostPropertiesListAndUpdate(t *testing.T) {
	host := newFixture(t, RoleHost)

	props, err := host.api.ListHostProperties(context.Background())
	if err != nil || len(props) != 1 || props[0].ID != "p-1" {
		t.Fatalf("unexpected host properties %+v (%v)", props, err)
	}

	in := PropertyInput{Title: "Cliff house", City: "Goa", PricePerNight: decimal.RequireFromString("99.50"), MaxGuests: 4}
	zero := in
	zero.PricePerNight = decimal.Zero
	negative := in
	negative.PricePerNight = decimal.NewFromInt(-10)

	calls := host.callCount()
	for _, tc := range []struct {
		id string
		in PropertyInput
	}{
		{"  ", in},
		{"p-1", zero},
		{"p-1", negative},
		{"p-1", PropertyInput{City: "Goa", PricePerNight: in.PricePerNight, MaxGuests: 4}},
	} {
		if _, err := host.api.UpdateProperty(context.Background(), tc.id, tc.in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for id=%q %+v, got %v", tc.id, tc.in, err)
		}
	}
	if host.callCount() != calls {
		t.Fatal("invalid updates must not reach the backend")
	}

	p, err := host.api.UpdateProperty(context.Background(), "p-1", in)
	if err != nil {
		t.Fatalf("update property: %v", err)
	}
	if p.ID != "p-1" || !p.PricePerNight.Equal(decimal.RequireFromString("99.5")) {
		t.Fatalf("unexpected property %+v", p)
	}
	if path, _, _ := host.last(); path != "PUT /host/properties/p-1" {
		t.Fatalf("unexpected route %q", path)
	}

	traveler := newFixture(t, RoleTraveler)
	if _, err := traveler.api.ListHostProperties(context.Background()); !errors.Is(err, goSession.ErrForbidden) || Message(err) != "hosts only" {
		t.Fatalf("expected forbidden for traveler, got %v", err)
	}
}
