package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"soundfetch/internal/core"
)

// TokenExpiryBuffer is how long before expiry a credential is treated as
// already expired. A token is never handed out within this buffer.
const TokenExpiryBuffer = 5 * time.Minute

// Broker owns the process-wide catalog credential. The raw token never
// leaves this package; catalog calls go through the broker's transport.
type Broker struct {
	conf   *clientcredentials.Config
	logger *zap.Logger
	buffer time.Duration

	mu    sync.Mutex
	token *oauth2.Token
	group singleflight.Group
}

// NewBroker creates a credential broker for the client-credentials exchange.
func NewBroker(config *core.SpotifyConfig, logger *zap.Logger) *Broker {
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	return &Broker{
		conf: &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     tokenURL,
		},
		logger: logger,
		buffer: TokenExpiryBuffer,
	}
}

// Token returns a credential valid for at least the expiry buffer. Concurrent
// callers on a cold or expired cache share a single issuance exchange.
func (b *Broker) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := b.cached(); tok != nil {
		return tok, nil
	}

	v, err, _ := b.group.Do("token", func() (any, error) {
		// A previous flight may have refreshed while we queued.
		if tok := b.cached(); tok != nil {
			return tok, nil
		}

		fresh, err := b.conf.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrUpstreamAuth, err)
		}

		b.mu.Lock()
		b.token = fresh
		b.mu.Unlock()

		b.logger.Debug("Issued catalog credential",
			zap.Time("expiry", fresh.Expiry))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*oauth2.Token), nil
}

// Invalidate clears the cached credential so the next Token call forces a
// refresh. Called after the catalog rejects a bearer token.
func (b *Broker) Invalidate() {
	b.mu.Lock()
	b.token = nil
	b.mu.Unlock()
	b.logger.Debug("Invalidated catalog credential")
}

func (b *Broker) cached() *oauth2.Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != nil && time.Now().Before(b.token.Expiry.Add(-b.buffer)) {
		return b.token
	}
	return nil
}
