package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

// tokenClaims is the JWT payload issued by the platform's auth service.
// The subject carries the account id; role and email ride as custom claims.
type tokenClaims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens against a shared secret. It implements
// interfaces.CredentialVerifier.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

// Verify parses and validates the token. Tokens must carry an expiry claim;
// one without it never expires and is rejected outright. Any failure is
// reported as ErrInvalidCredential so callers cannot distinguish why.
func (v *JWTVerifier) Verify(token string) (*interfaces.Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, interfaces.ErrInvalidCredential
	}
	if claims.Subject == "" {
		return nil, interfaces.ErrInvalidCredential
	}
	if !types.IsValidRole(types.Role(claims.Role)) {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrInvalidCredential, types.ErrInvalidRole)
	}

	resolved := &interfaces.Claims{
		AccountID: claims.Subject,
		Role:      types.Role(claims.Role),
		Email:     claims.Email,
	}
	if claims.ExpiresAt != nil {
		resolved.ExpiresAt = claims.ExpiresAt.Time
	}
	return resolved, nil
}

// Issue signs a token for the given account. Used by seed fixtures and tests.
func (v *JWTVerifier) Issue(accountID string, role types.Role, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role:  string(role),
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Resolver turns a credential token into a full Identity by verifying the
// token and joining the role profile. The result is computed once per
// connection and cached on it.
type Resolver struct {
	verifier interfaces.CredentialVerifier
	profiles interfaces.ProfileDirectory
}

// NewResolver creates a resolver over a verifier and the profile directory.
func NewResolver(verifier interfaces.CredentialVerifier, profiles interfaces.ProfileDirectory) *Resolver {
	return &Resolver{verifier: verifier, profiles: profiles}
}

// Resolve verifies the token and assembles the caller's identity. Admins
// carry no profile; for the other roles a missing profile record downgrades
// to an email display name rather than failing the handshake.
func (r *Resolver) Resolve(ctx context.Context, token string) (*types.Identity, error) {
	claims, err := r.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	identity := &types.Identity{
		AccountID:   claims.AccountID,
		Role:        claims.Role,
		DisplayName: claims.Email,
	}
	if claims.Role == types.RoleAdmin {
		return identity, nil
	}

	profile, err := r.lookupProfile(ctx, claims.Role, claims.AccountID)
	if err != nil {
		if errors.Is(err, interfaces.ErrProfileNotFound) {
			return identity, nil
		}
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}
	identity.ProfileID = profile.ProfileID
	if profile.DisplayName != "" {
		identity.DisplayName = profile.DisplayName
	}
	return identity, nil
}

func (r *Resolver) lookupProfile(ctx context.Context, role types.Role, accountID string) (*types.Profile, error) {
	switch role {
	case types.RoleStudent:
		return r.profiles.FindStudentByAccount(ctx, accountID)
	case types.RoleMentor:
		return r.profiles.FindMentorByAccount(ctx, accountID)
	case types.RoleCompany:
		return r.profiles.FindCompanyByAccount(ctx, accountID)
	default:
		return nil, interfaces.ErrProfileNotFound
	}
}
