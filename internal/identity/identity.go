// Package identity provides the current-user collaborator: HS256 bearer tokens
// carry the user id, an HTTP middleware puts it in the request context, and
// sign-out revokes the presented token.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for malformed, badly signed or expired tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRevokedToken is returned for tokens that were signed out.
	ErrRevokedToken = errors.New("token revoked")

	// ErrNoToken is returned by SignOut when the request carries no token.
	ErrNoToken = errors.New("no token")
)

// Revoker persists signed-out token ids.
type Revoker interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Claims are the JWT claims of an access token. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

type ctxKey struct{}

// principal is what the middleware stores in the request context.
type principal struct {
	userID string
	claims *Claims
}

// WithUser returns a context carrying userID as the current user.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, &principal{userID: userID})
}

// CurrentUser returns the user id stored in ctx, if any.
func CurrentUser(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(ctxKey{}).(*principal)
	if !ok || p.userID == "" {
		return "", false
	}
	return p.userID, true
}

// ContextProvider reads the current user from the request context.
type ContextProvider struct{}

// CurrentUser returns the user id stored in ctx, if any.
func (ContextProvider) CurrentUser(ctx context.Context) (string, bool) {
	return CurrentUser(ctx)
}

// Authenticator issues and verifies access tokens.
type Authenticator struct {
	secret  []byte
	revoker Revoker
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuthenticator creates an authenticator signing with secret.
func NewAuthenticator(secret string, revoker Revoker, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		secret:  []byte(secret),
		revoker: revoker,
		logger:  logger,
		now:     time.Now,
	}
}

// Issue mints a token for userID valid for ttl.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("issue token: empty user id")
	}
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and checks tokenString, including revocation.
func (a *Authenticator) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	if claims.ID != "" {
		revoked, err := a.revoker.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}

// SignOut revokes the token the current request was authenticated with.
func (a *Authenticator) SignOut(ctx context.Context) error {
	p, ok := ctx.Value(ctxKey{}).(*principal)
	if !ok || p.claims == nil {
		return ErrNoToken
	}
	if p.claims.ID == "" {
		return fmt.Errorf("%w: token has no id", ErrInvalidToken)
	}
	expiresAt := a.now().Add(24 * time.Hour)
	if p.claims.ExpiresAt != nil {
		expiresAt = p.claims.ExpiresAt.Time
	}
	if err := a.revoker.RevokeToken(ctx, p.claims.ID, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	a.logger.Info("signed out", "user_id", p.userID)
	return nil
}

// Middleware authenticates the Authorization bearer token. Requests without
// one pass through anonymously; requests with an unusable one get 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}

		claims, err := a.Verify(r.Context(), tokenString)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrRevokedToken) {
				a.logger.Error("verify token", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to verify token")
				return
			}
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, &principal{
			userID: claims.Subject,
			claims: claims,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mathprepa"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
