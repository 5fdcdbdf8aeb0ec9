package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "talentscout"

var ErrInvalidToken = errors.New("invalid or expired token")

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// CandidateTokens issues and verifies tokens that grant a candidate access to
// their own interview and stored data.
type CandidateTokens struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewCandidateTokens creates a token issuer. secretKey should be a dedicated
// subkey, never the master encryption key itself.
func NewCandidateTokens(secretKey []byte, expiry time.Duration) (*CandidateTokens, error) {
	if len(secretKey) < 32 {
		return nil, errors.New("token signing key must be at least 32 bytes")
	}
	if expiry == 0 {
		expiry = 30 * 24 * time.Hour
	}
	return &CandidateTokens{secretKey: secretKey, expiry: expiry, now: time.Now}, nil
}

// Expiry is how long an issued token stays valid.
func (a *CandidateTokens) Expiry() time.Duration { return a.expiry }

// CandidateClaims are the JWT claims; Subject is the candidate id.
type CandidateClaims struct {
	jwt.RegisteredClaims
}

// Issue signs a token for candidateID
func (a *CandidateTokens) Issue(candidateID string) (string, error) {
	if candidateID == "" {
		return "", errors.New("candidate id cannot be empty")
	}

	now := a.now()
	claims := CandidateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   candidateID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry and returns the candidate id
func (a *CandidateTokens) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CandidateClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CandidateClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
