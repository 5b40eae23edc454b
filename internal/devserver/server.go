// Package devserver is an in-memory stand-in for the patient and auth
// services. It serves the same endpoints the client consumes so the TUI and
// the CLI can run locally, and so HTTP tests have something real to talk to.
//
// Optional artificial latency (with jitter) makes responses arrive out of
// order, which is the situation the search controller has to survive.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/abelbrown/patientdesk/internal/logging"
	"github.com/abelbrown/patientdesk/internal/patient"
	"github.com/abelbrown/patientdesk/internal/store"
)

// tokenTTL is the lifetime of issued tokens.
const tokenTTL = 10 * time.Hour

// Options configures a Server.
type Options struct {
	Secret      []byte            // HS256 signing key; required
	RequireAuth bool              // reject /patients* without a valid bearer token
	Latency     time.Duration     // fixed delay added to every /patients* response
	Jitter      time.Duration     // extra random delay in [0, Jitter)
	Patients    []patient.Record  // nil means SeedPatients()
	Users       map[string]string // email -> plaintext password; nil means the seed user
	DBPath      string            // SQLite file; "" means a private in-memory database
}

// Claims are the token claims issued by /auth/login and /auth/register.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Server is the dev backend. Safe for concurrent use.
type Server struct {
	echo   *echo.Echo
	opts   Options
	secret []byte
	store  *store.Store

	rngMu sync.Mutex
	rng   *rand.Rand
}

// SeedUser is the account created when Options.Users is nil.
const (
	SeedUserEmail    = "testuser@test.com"
	SeedUserPassword = "password123"
)

// New builds a Server with routes registered. Fixture patients and users
// are added to the database unless it already holds them, so a file
// database keeps registered accounts across restarts.
func New(opts Options) (*Server, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("devserver: signing secret is required")
	}

	patients := opts.Patients
	if patients == nil {
		patients = SeedPatients()
	}
	users := opts.Users
	if users == nil {
		users = map[string]string{SeedUserEmail: SeedUserPassword}
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = store.Memory
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}
	if err := seed(st, patients, users); err != nil {
		st.Close()
		return nil, fmt.Errorf("devserver: seed: %w", err)
	}

	s := &Server{
		echo:   echo.New(),
		opts:   opts,
		secret: opts.Secret,
		store:  st,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(requestLogger())
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	authGroup := s.echo.Group("/auth")
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/register", s.handleRegister)
	authGroup.GET("/validate", s.handleValidate)

	patients := s.echo.Group("/patients", s.latency())
	if s.opts.RequireAuth {
		patients.Use(s.requireToken())
	}
	patients.GET("", s.handleList)
	patients.GET("/filter", s.handleFilter)
	patients.GET("/sort", s.handleSort)
	patients.GET("/id", s.handleByID)
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown. Returns nil on a clean shutdown.
func (s *Server) Start(addr string) error {
	logging.Info("devserver listening", "addr", addr, "auth", s.opts.RequireAuth, "latency", s.opts.Latency, "jitter", s.opts.Jitter)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the database without touching the listener. Used when the
// server was only mounted through Handler.
func (s *Server) Close() error {
	return s.store.Close()
}

func seed(st *store.Store, patients []patient.Record, users map[string]string) error {
	added, err := st.SavePatients(patients)
	if err != nil {
		return err
	}
	for email, pw := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		if err != nil {
			return err
		}
		if err := st.CreateUser(normalizeEmail(email), hash); err != nil && !errors.Is(err, store.ErrUserExists) {
			return err
		}
	}
	if added > 0 {
		logging.Debug("devserver seeded", "patients", added)
	}
	return nil
}

// IssueToken signs a token for email.
func (s *Server) IssueToken(email string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   normalizeEmail(email),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Email: normalizeEmail(email),
		Role:  "DOCTOR",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// latency delays /patients* responses by Latency plus random jitter.
func (s *Server) latency() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := s.opts.Latency
			if s.opts.Jitter > 0 {
				s.rngMu.Lock()
				d += time.Duration(s.rng.Int63n(int64(s.opts.Jitter)))
				s.rngMu.Unlock()
			}
			if d > 0 {
				select {
				case <-time.After(d):
				case <-c.Request().Context().Done():
					return c.Request().Context().Err()
				}
			}
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			logging.Debug("devserver request",
				"method", req.Method,
				"path", req.URL.Path,
				"query", req.URL.RawQuery,
				"status", c.Response().Status,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"dur", time.Since(start))
			return nil
		}
	}
}
