// Package spotify provides credentialed read access to the Spotify Web API
// for track, album and playlist metadata.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"soundfetch/internal/core"
)

// Client performs authenticated catalog reads. All calls carry the broker's
// bearer credential; a rejected credential is refreshed and retried exactly
// once before the failure surfaces.
type Client struct {
	api    *spotify.Client
	logger *zap.Logger
}

// NewClient creates a catalog client on top of the credential broker.
// Options are forwarded to the underlying API client; tests use
// spotify.WithBaseURL to point at a stub server.
func NewClient(config *core.SpotifyConfig, broker *Broker, logger *zap.Logger, opts ...spotify.ClientOption) *Client {
	httpClient := &http.Client{
		Transport: &authTransport{broker: broker, base: http.DefaultTransport},
		Timeout:   config.RequestTimeout,
	}

	return &Client{
		api:    spotify.New(httpClient, opts...),
		logger: logger,
	}
}

// GetTrack fetches a track by catalog identifier.
func (c *Client) GetTrack(ctx context.Context, id string) (*core.TrackMetadata, error) {
	full, err := c.api.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return nil, c.mapAPIError("track", id, err)
	}
	return convertTrack(full), nil
}

// GetAlbum fetches an album with its embedded track listing.
func (c *Client) GetAlbum(ctx context.Context, id string) (*core.CollectionMetadata, error) {
	full, err := c.api.GetAlbum(ctx, spotify.ID(id))
	if err != nil {
		return nil, c.mapAPIError("album", id, err)
	}
	return convertAlbum(full), nil
}

// GetPlaylist fetches a playlist with its embedded track listing.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*core.CollectionMetadata, error) {
	full, err := c.api.GetPlaylist(ctx, spotify.ID(id))
	if err != nil {
		return nil, c.mapAPIError("playlist", id, err)
	}
	return convertPlaylist(full), nil
}

func (c *Client) mapAPIError(resource, id string, err error) error {
	// Broker failures already carry the right classification.
	if errors.Is(err, core.ErrUpstreamAuth) {
		return err
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		c.logger.Warn("Catalog API error",
			zap.String("resource", resource),
			zap.String("id", id),
			zap.Int("status", apiErr.Status),
			zap.String("message", apiErr.Message))

		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return fmt.Errorf("%w: %s", core.ErrUpstreamAuth, apiErr.Message)
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return fmt.Errorf("%w: %s %s", core.ErrNotFound, resource, id)
		default:
			return fmt.Errorf("%w: %s", core.ErrUpstreamUnavailable, apiErr.Message)
		}
	}

	c.logger.Warn("Catalog request failed",
		zap.String("resource", resource),
		zap.String("id", id),
		zap.Error(err))
	return fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
}

// authTransport attaches the broker's bearer credential to every request.
// On a 401 it invalidates the credential, refreshes once and retries once;
// a second 401 passes through for the client to classify.
type authTransport struct {
	broker *Broker
	base   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.send(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	resp.Body.Close()
	t.broker.Invalidate()

	return t.send(req)
}

func (t *authTransport) send(req *http.Request) (*http.Response, error) {
	token, err := t.broker.Token(req.Context())
	if err != nil {
		return nil, err
	}

	// Per RoundTripper contract the original request is not mutated.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token.AccessToken)

	return t.base.RoundTrip(authed)
}
