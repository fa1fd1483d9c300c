package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"finsight/internal/models"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong
	// passwords so login failures do not leak which one happened.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken covers malformed, expired and revoked tokens.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrUsernameTaken is returned when registering an existing name.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("invalid role")

	// ErrUnknownCompany is returned when registration names a company
	// that does not exist.
	ErrUnknownCompany = errors.New("unknown company")
)

const (
	tokenIssuer   = "finsight"
	tokenAudience = "finsight-clients"
)

// Service implements registration, login and session management.
// Sessions live in Redis keyed by user: a token is only good while its
// jti matches the recorded session, so logout revokes it immediately.
type Service struct {
	store      *Store
	sessions   *redis.Client
	jwtSecret  []byte
	tokenTTL   time.Duration
	sessionTTL time.Duration
}

func NewService(store *Store, sessions *redis.Client, jwtSecret string, tokenTTL, sessionTTL time.Duration) *Service {
	return &Service{
		store:      store,
		sessions:   sessions,
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
		sessionTTL: sessionTTL,
	}
}

// Register creates an account. Non-admin roles must name an existing
// company; an unknown role is rejected rather than defaulted.
func (s *Service) Register(ctx context.Context, username, password, role string, companyID *uint) (*models.User, error) {
	if _, ok := models.AllRoles[role]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if role != models.RoleAdmin && companyID == nil {
		return nil, fmt.Errorf("%w: role %s requires a company", ErrInvalidRole, role)
	}
	if companyID != nil {
		exists, err := s.store.CompanyExists(*companyID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCompany, *companyID)
		}
	}

	if _, err := s.store.GetUserByUsername(username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		Username:  username,
		Password:  string(hashed),
		Role:      role,
		CompanyID: companyID,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the password, issues a JWT and records the session.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.ID,
		"iss": tokenIssuer,
		"aud": tokenAudience,
		"exp": now.Add(s.tokenTTL).Unix(),
		"iat": now.Unix(),
		"jti": sessionID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}

	if err := s.sessions.Set(ctx, sessionKey(user.ID), sessionID, s.sessionTTL).Err(); err != nil {
		return "", nil, fmt.Errorf("recording session: %w", err)
	}
	return token, user, nil
}

// Logout revokes the user's session. Tokens signed before this call
// stop validating immediately.
func (s *Service) Logout(ctx context.Context, userID uint) error {
	if err := s.sessions.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// Authenticate validates a bearer token against its recorded session
// and returns the user ID it belongs to.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, ErrInvalidToken
	}
	jti, ok := claims["jti"].(string)
	if !ok {
		return 0, ErrInvalidToken
	}

	userID := uint(sub)
	recorded, err := s.sessions.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("checking session: %w", err)
	}
	if recorded != jti {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func sessionKey(userID uint) string {
	return fmt.Sprintf("session:%d", userID)
}
