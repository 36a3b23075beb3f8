package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campusattend/internal/model"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Token use tags. A refresh token never authorizes an API request and
// an access token never mints a new pair.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// Claims is the JWT payload. The identity's role and academic placement
// are resolved once at login and carried here, never re-derived by
// trial lookups against the people collections.
type Claims struct {
	Role       model.Role `json:"role"`
	TokenUse   string     `json:"token_use"`
	Department string     `json:"department,omitempty"`
	Field      string     `json:"field,omitempty"`
	Year       string     `json:"year,omitempty"`
	jwt.RegisteredClaims
}

// Email returns the token subject.
func (c Claims) Email() string { return c.Subject }

// Issue signs access and refresh tokens for an identity.
func Issue(id Identity, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)

	build := func(exp time.Time, use string) Claims {
		return Claims{
			Role:       id.Role,
			TokenUse:   use,
			Department: id.Department,
			Field:      id.Field,
			Year:       id.Year,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   id.Email,
				ExpiresAt: jwt.NewNumericDate(exp),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, build(accessExp, TokenUseAccess)).SignedString([]byte(key))
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, build(refreshExp, TokenUseRefresh)).SignedString([]byte(key))
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Parse validates a token and returns its claims. use must match the
// token's use tag.
func Parse(tokenStr, key, issuer, use string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.TokenUse != use {
		return Claims{}, errors.New("wrong token use")
	}
	switch claims.Role {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
	default:
		return Claims{}, errors.New("unknown role")
	}
	return *claims, nil
}
