// Package security holds the token codec, password hashing, and refresh token
// hashing. Nothing in this package performs I/O.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kind tags embedded in every token. A token of one kind is never
// accepted where the other is expected.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// Decode failure kinds. Malformed and bad-signature tokens come from corrupt
// or hostile clients and must not be retried; expired tokens should trigger a
// refresh attempt.
var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
	ErrWrongTokenKind = errors.New("wrong token kind")
)

// AccessClaims holds JWT claims for the access token. Subject is the user's
// external identifier; the internal row id never enters a token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	Mobile      string `json:"mobile_number,omitempty"`
	DisplayName string `json:"full_name,omitempty"`
	TokenKind   string `json:"token_type"`
}

// RefreshClaims holds JWT claims for the refresh token. Deliberately minimal:
// no PII beyond the subject, since refresh tokens are stored longer.
type RefreshClaims struct {
	jwt.RegisteredClaims
	TokenKind string `json:"token_type"`
}

// AccessProfile is the claim payload embedded in an access token.
type AccessProfile struct {
	Email       string
	Mobile      string
	DisplayName string
}

// TokenCodec issues and decodes HS256-signed access and refresh tokens using
// a single symmetric key. Stateless: signature plus expiry plus kind tag is
// the whole validity check at this layer; whether a refresh token is still
// honored is the session store's concern.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewTokenCodec returns a TokenCodec signing with the given symmetric secret.
// issuer is set on claims and validated on decode.
func NewTokenCodec(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTLSeconds returns the access token lifetime in whole seconds, as
// reported to clients in the expires_in field.
func (c *TokenCodec) AccessTTLSeconds() int64 {
	return int64(c.accessTTL / time.Second)
}

// RefreshTTL returns the refresh token lifetime. Session rows are created with
// this expiry at issuance and it never changes afterwards.
func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// IssueAccess issues a short-lived access token for subject (external id)
// carrying the given profile claims. Returns the signed token and its expiry.
func (c *TokenCodec) IssueAccess(subject string, profile AccessProfile) (string, time.Time, error) {
	now := c.nowF()
	expiresAt := now.Add(c.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:       profile.Email,
		Mobile:      profile.Mobile,
		DisplayName: profile.DisplayName,
		TokenKind:   TokenKindAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh token for subject (external id).
// Returns the signed token and its expiry.
func (c *TokenCodec) IssueRefresh(subject string) (string, time.Time, error) {
	now := c.nowF()
	expiresAt := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenKind: TokenKindRefresh,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	return token, expiresAt, err
}

// DecodeAccess parses and validates an access token (signature, exp, iss).
// Fails with ErrWrongTokenKind when given a refresh token.
func (c *TokenCodec) DecodeAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.decode(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenKind != TokenKindAccess {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

// DecodeRefresh parses and validates a refresh token (signature, exp, iss).
// Fails with ErrWrongTokenKind when given an access token.
func (c *TokenCodec) DecodeRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.decode(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenKind != TokenKindRefresh {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

func (c *TokenCodec) decode(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.nowF),
	)
	if err != nil {
		return mapParseError(err)
	}
	if !token.Valid {
		return ErrMalformedToken
	}
	return nil
}

// mapParseError collapses jwt/v5 parse errors into the three decode failure
// kinds callers branch on.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		return ErrMalformedToken
	}
}
