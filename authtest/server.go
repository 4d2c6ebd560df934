package authtest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Cookie names and paths used by the fake backend.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
	refreshPath   = "/auth"
)

// Roles understood by the marketplace.
const (
	RoleTraveler = "traveler"
	RoleHost     = "host"
	RoleGuide    = "guide"
	RoleAdmin    = "admin"
)

// User seeds an account. Password is hashed on load.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"-"`
	Role     string `json:"role"`
}

// Options configures a Server. Zero values pick short test-friendly defaults.
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Token      TokenConfig
	BcryptCost int
	Users      []User
	Logger     *zap.Logger
}

type account struct {
	User
	hash []byte
}

type refreshSession struct {
	userID    string
	hash      [32]byte
	expiresAt time.Time
}

// Server is an in-process marketplace auth backend: login and signup issue a
// short-lived JWT access cookie and a rotating opaque refresh cookie, and
// protected routes require the access cookie.
type Server struct {
	*httptest.Server

	opts   Options
	tokens *tokenIssuer
	mux    *http.ServeMux
	logger *zap.Logger

	mu       sync.Mutex
	users    map[string]*account // by email
	sessions map[uuid.UUID]*refreshSession

	generation atomic.Uint64

	failRefresh atomic.Bool
	holdMu      sync.Mutex
	hold        *refreshHold

	loginCalls     atomic.Int64
	signupCalls    atomic.Int64
	refreshCalls   atomic.Int64
	logoutCalls    atomic.Int64
	protectedCalls atomic.Int64
	rejected       atomic.Int64
	reuseDetected  atomic.Int64
}

type refreshHold struct {
	arrived     chan struct{}
	arrivedOnce sync.Once
	release     chan struct{}
}

// NewServer builds the handler without listening. Mount it with Start or
// serve it yourself.
func NewServer(opts Options) (*Server, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 5 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	if opts.Token.SigningMethod == "" {
		opts.Token.SigningMethod = MethodHS256
		opts.Token.PrivateKey = []byte(uuid.NewString())
	}
	opts.Token.AccessTTL = opts.AccessTTL
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	tokens, err := newTokenIssuer(opts.Token)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		tokens:   tokens,
		mux:      http.NewServeMux(),
		logger:   opts.Logger.Named("authtest"),
		users:    make(map[string]*account),
		sessions: make(map[uuid.UUID]*refreshSession),
	}
	for _, u := range opts.Users {
		if _, err := s.AddUser(u); err != nil {
			return nil, err
		}
	}

	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.HandleProtected("GET /users/me", s.handleMe)

	return s, nil
}

// Start builds a Server listening on a loopback port.
func Start(opts Options) (*Server, error) {
	s, err := NewServer(opts)
	if err != nil {
		return nil, err
	}
	s.Server = httptest.NewServer(s)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handle registers an unauthenticated route using http.ServeMux patterns.
func (s *Server) Handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, h)
}

// HandleProtected registers a route behind the access-cookie guard.
func (s *Server) HandleProtected(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.guard(h))
}

// AddUser registers an account and returns it with its assigned id.
func (s *Server) AddUser(u User) (User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" || u.Password == "" {
		return User{}, errors.New("user requires email and password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), s.opts.BcryptCost)
	if err != nil {
		return User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleTraveler
	}
	u.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return User{}, errDuplicateUser
	}
	s.users[email] = &account{User: u, hash: hash}
	return u, nil
}

var errDuplicateUser = errors.New("email already registered")

/*
====================================
TEST CONTROLS
====================================
*/

// ExpireSessions invalidates every outstanding access token. Refresh cookies
// stay valid, so the next protected call must refresh.
func (s *Server) ExpireSessions() {
	s.generation.Add(1)
}

// RevokeSessions invalidates access tokens and refresh sessions alike.
func (s *Server) RevokeSessions() {
	s.generation.Add(1)
	s.mu.Lock()
	s.sessions = make(map[uuid.UUID]*refreshSession)
	s.mu.Unlock()
}

// FailRefresh makes the refresh endpoint answer 401 while fail is set.
func (s *Server) FailRefresh(fail bool) {
	s.failRefresh.Store(fail)
}

// HoldRefresh parks refresh calls until release is called. arrived is closed
// once the first parked call is received.
func (s *Server) HoldRefresh() (arrived <-chan struct{}, release func()) {
	h := &refreshHold{
		arrived: make(chan struct{}),
		release: make(chan struct{}),
	}
	s.holdMu.Lock()
	s.hold = h
	s.holdMu.Unlock()

	var once sync.Once
	return h.arrived, func() {
		once.Do(func() {
			s.holdMu.Lock()
			if s.hold == h {
				s.hold = nil
			}
			s.holdMu.Unlock()
			close(h.release)
		})
	}
}

// Counters is a snapshot of calls seen by the server.
type Counters struct {
	Login         int64
	Signup        int64
	Refresh       int64
	Logout        int64
	Protected     int64
	Rejected      int64
	ReuseDetected int64
}

func (s *Server) Counters() Counters {
	return Counters{
		Login:         s.loginCalls.Load(),
		Signup:        s.signupCalls.Load(),
		Refresh:       s.refreshCalls.Load(),
		Logout:        s.logoutCalls.Load(),
		Protected:     s.protectedCalls.Load(),
		Rejected:      s.rejected.Load(),
		ReuseDetected: s.reuseDetected.Load(),
	}
}

// RefreshCalls returns the number of refresh calls received.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// ActiveSessions returns the number of live refresh sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

/*
====================================
HANDLERS
====================================
*/

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	acct, ok := s.users[strings.ToLower(strings.TrimSpace(in.Email))]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(in.Password)) != nil {
		s.logRequest(r, http.StatusUnauthorized)
		WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := s.startSession(w, acct.User); err != nil {
		WriteError(w, http.StatusInternalServerError, "session creation failed")
		return
	}
	s.logRequest(r, http.StatusOK)
	WriteData(w, http.StatusOK, acct.User, "logged in")
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.signupCalls.Add(1)

	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}
	switch in.Role {
	case "", RoleTraveler, RoleHost, RoleGuide:
	default:
		WriteError(w, http.StatusBadRequest, "role not allowed")
		return
	}

	u, err := s.AddUser(User{Name: in.Name, Email: in.Email, Password: in.Password, Role: in.Role})
	switch {
	case errors.Is(err, errDuplicateUser):
		WriteError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.startSession(w, u); err != nil {
		WriteError(w, http.StatusInternalServerError, "session creation failed")
		return
	}
	s.logRequest(r, http.StatusCreated)
	WriteData(w, http.StatusCreated, u, "account created")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	s.waitHold(r)

	if s.failRefresh.Load() {
		s.reject(w, r, "refresh rejected")
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		s.reject(w, r, "missing refresh token")
		return
	}
	sid, secret, err := decodeRefreshToken(cookie.Value)
	if err != nil {
		s.reject(w, r, "invalid refresh token")
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[sid]
	if !ok || time.Now().After(sess.expiresAt) {
		delete(s.sessions, sid)
		s.mu.Unlock()
		s.reject(w, r, "refresh session expired")
		return
	}
	hash := hashRefreshSecret(secret)
	if subtle.ConstantTimeCompare(hash[:], sess.hash[:]) != 1 {
		// A rotated-out secret came back: the token leaked.
		delete(s.sessions, sid)
		s.mu.Unlock()
		s.reuseDetected.Add(1)
		s.logger.Warn("refresh token reuse detected", zap.String("session_id", sid.String()))
		s.reject(w, r, "refresh token reuse")
		return
	}
	next, err := newRefreshSecret()
	if err != nil {
		s.mu.Unlock()
		WriteError(w, http.StatusInternalServerError, "rotation failed")
		return
	}
	sess.hash = hashRefreshSecret(next)
	userID := sess.userID
	s.mu.Unlock()

	u, ok := s.userByID(userID)
	if !ok {
		s.reject(w, r, "unknown user")
		return
	}
	if err := s.setSessionCookies(w, u, sid, next); err != nil {
		WriteError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	s.logRequest(r, http.StatusOK)
	WriteData(w, http.StatusOK, nil, "session refreshed")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		if sid, _, err := decodeRefreshToken(cookie.Value); err == nil {
			s.mu.Lock()
			delete(s.sessions, sid)
			s.mu.Unlock()
		}
	}
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Path: "/", MaxAge: -1, HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Path: refreshPath, MaxAge: -1, HttpOnly: true})
	s.logRequest(r, http.StatusOK)
	WriteData(w, http.StatusOK, nil, "logged out")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	u, ok := s.userByID(p.UserID)
	if !ok {
		WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	WriteData(w, http.StatusOK, u, "")
}

/*
====================================
SESSIONS
====================================
*/

func (s *Server) startSession(w http.ResponseWriter, u User) error {
	secret, err := newRefreshSecret()
	if err != nil {
		return err
	}
	sid := uuid.New()

	s.mu.Lock()
	s.sessions[sid] = &refreshSession{
		userID:    u.ID,
		hash:      hashRefreshSecret(secret),
		expiresAt: time.Now().Add(s.opts.RefreshTTL),
	}
	s.mu.Unlock()

	return s.setSessionCookies(w, u, sid, secret)
}

func (s *Server) setSessionCookies(w http.ResponseWriter, u User, sid uuid.UUID, secret [refreshSecretSize]byte) error {
	access, err := s.tokens.Issue(u.ID, sid.String(), u.Role, s.generation.Load())
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    access,
		Path:     "/",
		MaxAge:   int(s.opts.AccessTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    encodeRefreshToken(sid, secret),
		Path:     refreshPath,
		MaxAge:   int(s.opts.RefreshTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (s *Server) userByID(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.users {
		if a.ID == id {
			return a.User, true
		}
	}
	return User{}, false
}

func (s *Server) waitHold(r *http.Request) {
	s.holdMu.Lock()
	h := s.hold
	s.holdMu.Unlock()
	if h == nil {
		return
	}
	h.arrivedOnce.Do(func() { close(h.arrived) })
	select {
	case <-h.release:
	case <-r.Context().Done():
	}
}

func (s *Server) logRequest(r *http.Request, status int) {
	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
		zap.Int("status", status),
	)
}

/*
====================================
ENVELOPE
====================================
*/

// Envelope is the response body shape of the marketplace API.
type Envelope struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteData writes data wrapped in the response envelope.
func WriteData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, Envelope{Data: data, Message: message})
}

// WriteError writes an envelope carrying only message.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
