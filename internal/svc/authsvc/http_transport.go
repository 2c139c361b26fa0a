package authsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
	http_ "github.com/mkrupp/homecase-filevault/internal/infra/transport/http"
)

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

// HTTPTransport handles HTTP requests for the authentication service.
// It provides endpoints for user registration, login, and token validation.
type HTTPTransport struct {
	authSvc *AuthService
	router  chi.Router
	log     logging.Logger
}

var (
	_ http_.HTTPTransport  = (*HTTPTransport)(nil)
	_ http_.RouteRegistrar = (*HTTPTransport)(nil)
)

// NewHTTPTransport creates a new HTTPTransport instance.
// It requires an AuthService for handling authentication operations.
func NewHTTPTransport(authSvc *AuthService) *HTTPTransport {
	ht := &HTTPTransport{
		authSvc: authSvc,
		router:  chi.NewRouter(),
		log:     logging.GetLogger("svc.authsvc.http_transport"),
	}

	ht.RegisterRoutes(ht.router)

	return ht
}

// RegisterRoutes implements http_.RouteRegistrar:
// - POST /auth/register: Register a new user
// - POST /auth/login: Login and get an auth token
// - POST /auth/validate: Validate an auth token.
func (ht *HTTPTransport) RegisterRoutes(router chi.Router) {
	router.Post("/auth/register", ht.HandleRegister)
	router.Post("/auth/login", ht.HandleLogin)
	router.With(func(next http.Handler) http.Handler {
		return http_.AuthorizingMiddleware(next, ht.authSvc, ht.log)
	}).Post("/auth/validate", ht.HandleValidate)
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

// HandleRegister processes user registration requests.
// Expects form parameters: username, password.
func (ht *HTTPTransport) HandleRegister(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleRegister(w, r)
}

func (ht *HTTPTransport) handleRegister(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "user register failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered")
		}
	}(r.Context())

	username, password, err := credentials(w, r)
	if err != nil {
		return err
	}

	log = log.With(logging.Group("user", "username", username))

	userID, err := ht.authSvc.Register(r.Context(), username, password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserAlreadyExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, domain.ErrPasswordTooLong):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}

		return fmt.Errorf("register user: %w", err)
	}

	return writeJSON(w, http.StatusCreated, RegisterResponse{ID: userID, Username: username})
}

// HandleLogin processes user login requests.
// Expects form parameters: username, password
// Returns an auth token on successful login.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleLogin(w, r)
}

func (ht *HTTPTransport) handleLogin(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "user login failed", "error", err)
		} else {
			log.DebugContext(ctx, "user logged in")
		}
	}(r.Context())

	username, password, err := credentials(w, r)
	if err != nil {
		return err
	}

	log = log.With(logging.Group("user", "username", username))

	token, err := ht.authSvc.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		} else {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}

		return fmt.Errorf("login user: %w", err)
	}

	return writeJSON(w, http.StatusOK, domain.AuthTokenResponse{Token: token})
}

// HandleValidate reports the claims of the bearer token in the request.
// The token itself is checked by the authorizing middleware.
func (ht *HTTPTransport) HandleValidate(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleValidate(w, r)
}

func (ht *HTTPTransport) handleValidate(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "user token validation failed", "error", err)
		} else {
			log.DebugContext(ctx, "user token validated")
		}
	}(r.Context())

	found, err := ht.authSvc.CurrentUser(r.Context())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return fmt.Errorf("current user: %w", err)
	}

	return writeJSON(w, http.StatusOK, RegisterResponse{ID: found.ID, Username: found.Username})
}

func credentials(w http.ResponseWriter, r *http.Request) (string, string, error) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return "", "", fmt.Errorf("parse form: %w", err)
	}

	username := r.PostFormValue("username")
	if username == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return "", "", domain.ErrNoUsername
	}

	password := r.PostFormValue("password")
	if password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return "", "", domain.ErrNoPassword
	}

	return username, password, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}
