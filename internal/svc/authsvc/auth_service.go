package authsvc

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	context_ "github.com/mkrupp/homecase-filevault/internal/infra/context"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
	"github.com/mkrupp/homecase-filevault/internal/repo/user"
)

// TokenIssuer is the issuer claim of every token this service signs.
const TokenIssuer = "filevault"

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SigningKeyFile is the path to the RSA private key file
	SigningKeyFile string `env:"SIGNING_KEY_FILE" envDefault:"var/storage/filevault.key"`

	// TokenDuration is the validity duration of auth tokens in seconds
	TokenDuration int64 `env:"TOKEN_DURATION" envDefault:"3600"` // 1h

	// BcryptCost is the bcrypt work factor for password hashes
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

// AuthService provides user registration, authentication and token handling.
type AuthService struct {
	Config     AuthConfig
	UserRepo   user.Repository
	Log        logging.Logger
	SigningKey *rsa.PrivateKey

	// dummyHash is compared against when a user does not exist, so a failed
	// login takes the same time either way.
	dummyHash []byte
	dummyOnce sync.Once
}

// NewAuthService creates a new AuthService on top of the given user repository.
// Returns an error if the signing key cannot be loaded.
func NewAuthService(userRepo user.Repository, cfg AuthConfig) (*AuthService, error) {
	log := logging.GetLogger("svc.authsvc.auth_service")

	signingKey, err := GetPrivateKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	return &AuthService{
		Config:     cfg,
		UserRepo:   userRepo,
		Log:        log,
		SigningKey: signingKey,
	}, nil
}

// Register creates a new user account and returns its id. Only a bcrypt hash
// of the password is stored.
// Returns ErrUserAlreadyExists if the username is taken (case-sensitive).
func (s *AuthService) Register(ctx context.Context, username, password string) (userID domain.UserID, err error) {
	log := s.Log.With(logging.Group("user", "username", username))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "register user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered", "id", userID)
		}
	}()

	if username == "" {
		return 0, domain.ErrNoUsername
	}

	if password == "" {
		return 0, domain.ErrNoPassword
	}

	if len(password) > domain.MaxPasswordLength {
		return 0, fmt.Errorf("%w: exceeds %d bytes", domain.ErrPasswordTooLong, domain.MaxPasswordLength)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost())
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	userID, err = s.UserRepo.CreateUser(ctx, username, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}

	return userID, nil
}

// Authenticate checks a username/password pair and returns the user id.
// Returns ErrInvalidCredentials if the user does not exist or the password
// does not match; the two cases are indistinguishable to the caller.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (userID domain.UserID, err error) {
	log := s.Log.With(logging.Group("user", "username", username))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "authenticate failed", "error", err)
		} else {
			log.DebugContext(ctx, "authenticated", "id", userID)
		}
	}()

	found, err := s.UserRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return 0, fmt.Errorf("get user: %w", err)
		}

		_ = bcrypt.CompareHashAndPassword(s.getDummyHash(), []byte(password))

		return 0, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(found.PasswordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return 0, domain.ErrInvalidCredentials
		}

		return 0, errors.Join(domain.ErrInvalidCredentials, fmt.Errorf("compare hash: %w", err))
	}

	return found.ID, nil
}

// Login authenticates a user and issues a signed token.
// Returns the encoded token string or an error if authentication fails.
func (s *AuthService) Login(ctx context.Context, username, password string) (_ string, err error) {
	log := s.Log

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "login failed", "error", err)
		} else {
			log.DebugContext(ctx, "login successful")
		}
	}()

	userID, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}

	now := time.Now()
	expiry := now.Add(time.Duration(s.Config.TokenDuration) * time.Second)

	claims := domain.AuthToken{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatInt(int64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		UserID:   userID,
		Username: username,
	}

	log = log.With(logging.Group("token",
		"uid", userID,
		"exp", expiry.UTC().Format(time.RFC3339),
		"iat", now.UTC().Format(time.RFC3339),
	))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken verifies a token's signature and expiration.
// Returns the decoded token if valid, or ErrInvalidAuthToken.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (token domain.AuthToken, err error) {
	log := s.Log

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "validate token failed", "error", err)
		} else {
			log.DebugContext(ctx, "token validated")
		}
	}()

	token, err = ValidateToken(ctx, tokenString, &s.SigningKey.PublicKey)
	if err != nil {
		return domain.AuthToken{}, fmt.Errorf("validate token: %w", err)
	}

	log = log.With(logging.Group("token", "uid", token.UserID, "sub", token.Subject))

	return token, nil
}

// CurrentUser returns the user whose id the request context carries.
// Returns ErrNoAuthToken if the context is not authenticated.
func (s *AuthService) CurrentUser(ctx context.Context) (*domain.User, error) {
	userID, ok := context_.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrNoAuthToken
	}

	found, err := s.UserRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return found, nil
}

func (s *AuthService) bcryptCost() int {
	if s.Config.BcryptCost < bcrypt.MinCost {
		return bcrypt.DefaultCost
	}

	return s.Config.BcryptCost
}

func (s *AuthService) getDummyHash() []byte {
	s.dummyOnce.Do(func() {
		// fails only on a cost out of range, which bcryptCost prevents
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("filevault-dummy-password"), s.bcryptCost())
	})

	return s.dummyHash
}
