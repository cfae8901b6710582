package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "collabspace"

// Purpose scopes a token to one use. An email-verification token must never
// authenticate API calls, and an access token must never verify an email.
type Purpose string

const (
	PurposeAccess      Purpose = "access"
	PurposeVerifyEmail Purpose = "verify_email"
)

var ErrWrongPurpose = errors.New("token used for the wrong purpose")

// Claims is the payload inside every JWT we issue.
//
// RegisteredClaims.ID carries the jti. Sign-out deny-lists that value, so it
// must be unique per token.
type Claims struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	Purpose Purpose   `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenID is the jti.
func (c *Claims) TokenID() string {
	return c.ID
}

// Expiry returns the expiry time, or the zero time if the token has none.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issuer signs and parses tokens with one HMAC secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// GenerateToken creates a signed HS256 token for userID with a fresh jti.
func (i *Issuer) GenerateToken(userID uuid.UUID, email string, purpose Purpose, ttl time.Duration) (string, *Claims, error) {
	now := i.now()

	claims := &Claims{
		UserID:  userID,
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken validates signature, expiry and issuer, then checks that the
// token was minted for want.
func (i *Issuer) ParseToken(tokenString string, want Purpose) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Only HMAC. A token claiming "none" or RSA is rejected here.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Purpose != want {
		return nil, ErrWrongPurpose
	}
	if claims.UserID == uuid.Nil || claims.ID == "" {
		return nil, fmt.Errorf("token missing subject or id")
	}
	return claims, nil
}
