package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// Claims are the identity claims minted by the identity service.
type Claims struct {
	Name        string   `json:"name,omitempty"`
	OrgID       string   `json:"org_id"`
	Role        string   `json:"role,omitempty"`
	Departments []string `json:"departments,omitempty"`
	Admin       bool     `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and turns them into actors.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for actor. Used by tests and local tooling.
func (a *Authenticator) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Name:        actor.DisplayName,
		OrgID:       actor.OrgID,
		Role:        actor.Role,
		Departments: actor.Departments,
		Admin:       actor.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Parse verifies token and returns the actor it names.
func (a *Authenticator) Parse(token string) (domain.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Actor{}, errors.Unauthenticated("missing bearer token")
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return domain.Actor{}, errors.Unauthenticated("invalid bearer token")
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.OrgID) == "" {
		return domain.Actor{}, errors.Unauthenticated("token lacks subject or organization")
	}

	return domain.Actor{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		OrgID:       claims.OrgID,
		Role:        claims.Role,
		Departments: claims.Departments,
		Admin:       claims.Admin,
	}, nil
}

// Authenticate rejects requests without a valid bearer token and stores the
// actor on the request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Parse(BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			e := errors.Unauthenticated("invalid bearer token")
			errors.As(err, &e)
			w.Header().Set("WWW-Authenticate", `Bearer realm="approvals"`)
			WriteError(w, e, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor set by Authenticate.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}
