package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/notes-bin/aigallery/internal/model"
	"github.com/notes-bin/aigallery/internal/redis"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmptyCredentials   = errors.New("username and password are required")
)

// Session is the authenticated caller of a request.
type Session struct {
	UserID    string
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

type Auth struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client
}

func NewAuth(secret string, ttl time.Duration, redis *redis.Client) *Auth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{secret: []byte(secret), ttl: ttl, redis: redis}
}

func (a *Auth) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrEmptyCredentials
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:        uuid.NewString(),
		Username:  username,
		Password:  string(hashed),
		CreatedAt: time.Now(),
	}
	created, err := a.redis.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrUserExists
	}
	return user, nil
}

func (a *Auth) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.redis.GetUser(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return a.GenerateToken(user.ID, user.Username)
}

func (a *Auth) GenerateToken(userID, username string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"jti":      uuid.NewString(),
		"exp":      time.Now().Add(a.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken validates a signed token and rejects revoked sessions.
func (a *Auth) ParseToken(ctx context.Context, tokenStr string) (*Session, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	jti, _ := claims["jti"].(string)
	if userID == "" || jti == "" {
		return nil, ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	revoked, err := a.redis.IsRevoked(ctx, jti)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return &Session{UserID: userID, Username: username, TokenID: jti, ExpiresAt: exp.Time}, nil
}

// Logout revokes the session for the rest of its lifetime.
func (a *Auth) Logout(ctx context.Context, s *Session) error {
	return a.redis.RevokeToken(ctx, s.TokenID, time.Until(s.ExpiresAt))
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by the auth middleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
