// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth mints the short-lived bearer tokens the resolver presents to
// the connector and storage services.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes requested from the platform services.
const (
	ScopeStorageToken       = "storage:token"
	ScopeConnectorSignedURL = "connector:signedUrl"
)

// DefaultTTL is the lifetime of a minted token.
const DefaultTTL = time.Hour

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrMissingOrgID  = errors.New("orgId is required")
)

// Minter produces bearer tokens scoped to an organisation.
type Minter interface {
	Mint(ctx context.Context, orgID string, scopes []string) (string, error)
}

// Claims is the payload of a minted token.
type Claims struct {
	OrgID  string   `json:"orgId"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// JWTMinter signs tokens with a shared HS256 secret.
type JWTMinter struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a JWTMinter.
type Option func(*JWTMinter) error

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) Option {
	return func(m *JWTMinter) error {
		m.issuer = issuer
		return nil
	}
}

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *JWTMinter) error {
		if ttl <= 0 {
			return fmt.Errorf("token ttl must be positive, got %s", ttl)
		}
		m.ttl = ttl
		return nil
	}
}

// NewJWTMinter creates a minter for the given secret.
func NewJWTMinter(secret string, opts ...Option) (*JWTMinter, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	m := &JWTMinter{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Mint returns a signed token for orgID carrying scopes.
func (m *JWTMinter) Mint(ctx context.Context, orgID string, scopes []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if orgID == "" {
		return "", ErrMissingOrgID
	}

	now := m.now()
	claims := Claims{
		OrgID:  orgID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token minted with secret and returns its claims.
func Parse(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}
