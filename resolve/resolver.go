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

// Package resolve turns an event payload into the bytes of the record's
// content, whichever of the four supported shapes the payload arrived in.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/recordstream/auth"
	"github.com/poiesic/recordstream/core"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = time.Second
)

// Resolver populates Payload.Buffer.
type Resolver struct {
	downloader     *Downloader
	minter         auth.Minter
	connectorURL   string
	storageURL     string
	maxAttempts    int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver) error

// WithDownloader replaces the default downloader.
func WithDownloader(d *Downloader) Option {
	return func(r *Resolver) error {
		r.downloader = d
		return nil
	}
}

// WithRetry sets the attempt count and base backoff for signed URL fetches.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(r *Resolver) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		r.maxAttempts = maxAttempts
		r.retryBaseDelay = baseDelay
		return nil
	}
}

// WithStorageURL sets the base URL that relative storage routes resolve
// against. Other relative routes resolve against the connector URL.
func WithStorageURL(storageURL string) Option {
	return func(r *Resolver) error {
		r.storageURL = strings.TrimSuffix(storageURL, "/")
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) error {
		r.logger = logger
		return nil
	}
}

// NewResolver creates a resolver that mints tokens with minter and falls
// back to streaming from connectorURL.
func NewResolver(minter auth.Minter, connectorURL string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		minter:         minter,
		connectorURL:   strings.TrimSuffix(connectorURL, "/"),
		maxAttempts:    DefaultMaxAttempts,
		retryBaseDelay: DefaultRetryBaseDelay,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.downloader == nil {
		r.downloader = NewDownloader(nil, 0, 0)
	}
	r.logger = r.logger.With("component", "resolver")
	return r, nil
}

// Resolve fills p.Buffer from whichever content location the payload carries.
func (r *Resolver) Resolve(ctx context.Context, p *core.Payload) error {
	switch {
	case len(p.Buffer) > 0:
		return nil
	case p.SignedURL != "":
		return r.fromSignedURL(ctx, p, p.SignedURL)
	case p.SignedURLRoute != "":
		return r.fromRoute(ctx, p)
	default:
		return r.fromConnector(ctx, p)
	}
}

func (r *Resolver) fromSignedURL(ctx context.Context, p *core.Payload, signedURL string) error {
	var resp *Response
	err := RetryWithBackoff(ctx, r.logger.With("record_id", p.RecordID), func(ctx context.Context) error {
		var err error
		resp, err = r.downloader.Get(ctx, signedURL, nil)
		return err
	}, r.maxAttempts, r.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to download signed url: %w", err)
	}
	p.Buffer = resp.Body
	return nil
}

func (r *Resolver) fromRoute(ctx context.Context, p *core.Payload) error {
	scopes := RouteScopes(p.SignedURLRoute)
	header, err := r.bearer(ctx, p.OrgID, scopes)
	if err != nil {
		return err
	}

	resp, err := r.downloader.Get(ctx, r.absoluteRoute(p.SignedURLRoute, scopes), header)
	if err != nil {
		return fmt.Errorf("failed to fetch signed url route: %w", err)
	}

	if isJSON(resp.ContentType) {
		if signedURL := signedURLFromJSON(resp.Body); signedURL != "" {
			r.logger.Debug("route returned signed url", "record_id", p.RecordID)
			return r.fromSignedURL(ctx, p, signedURL)
		}
	}
	p.Buffer = resp.Body
	return nil
}

func (r *Resolver) fromConnector(ctx context.Context, p *core.Payload) error {
	if p.RecordID == "" {
		return ErrMissingRecordID
	}
	if r.connectorURL == "" {
		return ErrNoConnectorURL
	}
	header, err := r.bearer(ctx, p.OrgID, []string{auth.ScopeConnectorSignedURL})
	if err != nil {
		return err
	}

	streamURL := fmt.Sprintf("%s/api/v1/stream/record/%s", r.connectorURL, url.PathEscape(p.RecordID))
	resp, err := r.downloader.Get(ctx, streamURL, header)
	if err != nil {
		return fmt.Errorf("failed to stream record: %w", err)
	}
	p.Buffer = resp.Body
	return nil
}

func (r *Resolver) bearer(ctx context.Context, orgID string, scopes []string) (http.Header, error) {
	token, err := r.minter.Mint(ctx, orgID, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return header, nil
}

// absoluteRoute prefixes a path-only route with the base URL of the service
// it targets.
func (r *Resolver) absoluteRoute(route string, scopes []string) string {
	if !strings.HasPrefix(route, "/") {
		return route
	}
	if scopes[0] == auth.ScopeStorageToken && r.storageURL != "" {
		return r.storageURL + route
	}
	return r.connectorURL + route
}

// RouteScopes selects the token scopes for a signed URL route: routes that
// target the storage service need a storage token.
func RouteScopes(route string) []string {
	path := route
	if u, err := url.Parse(route); err == nil && u.Path != "" {
		path = u.Path
	}
	if strings.Contains(path, "/storage/") || strings.Contains(path, "/document/") {
		return []string{auth.ScopeStorageToken}
	}
	return []string{auth.ScopeConnectorSignedURL}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

// signedURLFromJSON reads signedUrl from the top level or from under data.
func signedURLFromJSON(body []byte) string {
	var doc struct {
		SignedURL string          `json:"signedUrl"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if doc.SignedURL != "" {
		return doc.SignedURL
	}
	var data struct {
		SignedURL string `json:"signedUrl"`
	}
	if len(doc.Data) > 0 && json.Unmarshal(doc.Data, &data) == nil {
		return data.SignedURL
	}
	return ""
}
