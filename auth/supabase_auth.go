// Package auth authenticates end users with Supabase-issued access tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coreybb/horoscope/models"
	"github.com/coreybb/horoscope/webutil"
)

var ErrMissingToken = errors.New("missing bearer token")

// Config holds the Supabase settings needed to verify access tokens.
type Config struct {
	URL       string
	AnonKey   string
	JWTSecret string
}

// Claims are the Supabase access-token claims we rely on.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier turns a bearer token into a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// SupabaseVerifier checks tokens locally with the project JWT secret and
// falls back to the Auth REST API when no secret is configured or local
// verification fails.
type SupabaseVerifier struct {
	config Config
	client *http.Client
}

func NewSupabaseVerifier(config Config) *SupabaseVerifier {
	return &SupabaseVerifier{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if v.config.JWTSecret != "" {
		user, err := v.verifyLocal(token)
		if err == nil {
			return user, nil
		}
		if v.config.URL == "" {
			return nil, err
		}
		slog.Debug("Local token verification failed, asking Supabase", "error", err)
	}
	return v.verifyRemote(ctx, token)
}

func (v *SupabaseVerifier) verifyLocal(token string) (*models.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("jwt invalid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("jwt has no subject")
	}
	return &models.User{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

func (v *SupabaseVerifier) verifyRemote(ctx context.Context, token string) (*models.User, error) {
	if v.config.URL == "" {
		return nil, fmt.Errorf("no token verification method configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(v.config.URL, "/")+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(webutil.HeaderAuthorization, "Bearer "+token)
	req.Header.Set("apikey", v.config.AnonKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("token validation failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("supabase returned a user without id")
	}
	return &user, nil
}

// RequireUser rejects requests without a valid bearer token and stores the
// verified user on the request context.
func RequireUser(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				webutil.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Warn("Rejected access token", "path", r.URL.Path, "error", err)
				webutil.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(webutil.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type contextKey string

const userContextKey contextKey = "auth_user"

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// UserIDFromContext returns "" when the request is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if user := UserFromContext(ctx); user != nil {
		return user.ID
	}
	return ""
}
