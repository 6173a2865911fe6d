package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed, or minted for another issuer or audience.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenTypeAccess is the only token type issued.
const TokenTypeAccess = "access"

// Subject identifies who an access token is minted for.
type Subject struct {
	UserID       string
	Username     string
	SessionID    string
	IsTechnician bool
	IsSuperAdmin bool
}

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username     string `json:"username"`
	SessionID    string `json:"session_id"`
	DeviceID     string `json:"device_id"`
	Type         string `json:"type"`
	IsTechnician bool   `json:"is_technician"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// AccessTokenTTL is the fixed lifetime of access tokens: 30 days, reported to clients as expires_in=2592000.
const AccessTokenTTL = 30 * 24 * time.Hour

// TokenProvider issues and decodes JWT access tokens using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on decode.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}
}

// AccessTTL is the lifetime of issued access tokens.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// IssueAccess signs an access JWT for sub, issued at now. Returns the token and its claims.
func (p *TokenProvider) IssueAccess(sub Subject, now time.Time) (string, *AccessClaims, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", nil, err
	}
	now = now.UTC()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sub.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
		},
		Username:     sub.Username,
		SessionID:    sub.SessionID,
		DeviceID:     "session-" + sub.SessionID,
		Type:         TokenTypeAccess,
		IsTechnician: sub.IsTechnician,
		IsSuperAdmin: sub.IsSuperAdmin,
	}
	token, err := p.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Decode verifies the signature, issuer and audience and returns the claims.
// Expiry and token type are left to the caller, which checks them against stored state.
func (p *TokenProvider) Decode(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer || !slices.Contains(claims.Audience, p.audience) {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
