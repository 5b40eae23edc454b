package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/abelbrown/patientdesk/internal/logging"
	"github.com/abelbrown/patientdesk/internal/patient"
	"github.com/abelbrown/patientdesk/internal/store"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) handleList(c echo.Context) error {
	out, err := s.store.ListPatients()
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// handleFilter matches a case-insensitive name substring and/or
// dateOfBirth <= the given date. Both parameters are optional.
func (s *Server) handleFilter(c echo.Context) error {
	dob, err := patient.ParseDate(c.QueryParam("dateOfBirth"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dateOfBirth")
	}
	out, err := s.store.FilterPatients(c.QueryParam("filterName"), dob)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSort(c echo.Context) error {
	raw := c.QueryParam("sortBy")
	if strings.TrimSpace(raw) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sortBy is required")
	}
	key, err := patient.ParseSortKey(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "sortBy must be name or dob")
	}
	out, err := s.store.SortPatients(key)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleByID(c echo.Context) error {
	id, err := uuid.Parse(strings.TrimSpace(c.QueryParam("id")))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := s.store.GetPatient(id.String())
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	}
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func storeError(err error) error {
	logging.Error("devserver store", "err", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "storage error")
}

// handleLogin answers a bare 401 on bad credentials; clients supply their own message.
func (s *Server) handleLogin(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	hash, err := s.store.PasswordHash(normalizeEmail(req.Email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeError(err)
	}
	if err != nil || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		return c.NoContent(http.StatusUnauthorized)
	}

	token, err := s.IssueToken(req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleRegister(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	email := normalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store password")
	}

	if err := s.store.CreateUser(email, hash); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return echo.NewHTTPError(http.StatusConflict, "Email already registered")
		}
		return storeError(err)
	}

	token, err := s.IssueToken(email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusCreated, tokenResponse{Token: token})
}

func (s *Server) handleValidate(c echo.Context) error {
	if _, err := s.parseBearer(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
		return c.NoContent(http.StatusUnauthorized)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) requireToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := s.parseBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}
			c.Set("email", claims.Email)
			return next(c)
		}
	}
}

func (s *Server) parseBearer(header string) (*Claims, error) {
	if header == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return claims, nil
}
