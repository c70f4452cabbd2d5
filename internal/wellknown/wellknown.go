package wellknown

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

// TokensResponse is one page of a token list document.
type TokensResponse struct {
	Tokens     []*models.Token `json:"tokens"`
	Pagination Pagination      `json:"pagination"`
}

// Pagination represents the pagination info in the tokens response
type Pagination struct {
	Limit   int    `json:"limit"`
	HasNext bool   `json:"hasNext"`
	Cursor  string `json:"cursor"`
}

type tokenKey struct {
	chainID int64
	symbol  string
}

func keyFor(chainID int64, symbol string) tokenKey {
	return tokenKey{chainID: chainID, symbol: strings.ToUpper(symbol)}
}

// TokenRegistry resolves payment tokens per chain. Statically configured
// tokens always win over tokens fetched from the list URL.
type TokenRegistry struct {
	logger   *logger.Logger
	listURL  string
	interval time.Duration
	client   *http.Client

	static map[tokenKey]*models.Token

	// In-memory cache of the fetched list
	tokenCache map[tokenKey]*models.Token
	cacheMutex sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTokenRegistry creates a registry. listURL may be empty, in which case
// only the static tokens are known.
func NewTokenRegistry(logger *logger.Logger, static []*models.Token, listURL string, interval time.Duration) *TokenRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = time.Hour
	}
	r := &TokenRegistry{
		logger:     logger,
		listURL:    listURL,
		interval:   interval,
		static:     make(map[tokenKey]*models.Token, len(static)),
		tokenCache: make(map[tokenKey]*models.Token),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, t := range static {
		r.static[keyFor(t.ChainID, t.Symbol)] = t
	}
	return r
}

// Resolve implements models.TokenResolver. Symbols are case-insensitive.
func (w *TokenRegistry) Resolve(chainID int64, symbol string) (*models.Token, bool) {
	key := keyFor(chainID, symbol)
	if t, ok := w.static[key]; ok {
		return t, true
	}
	w.cacheMutex.RLock()
	defer w.cacheMutex.RUnlock()
	t, ok := w.tokenCache[key]
	return t, ok
}

// GetAllTokens returns static and fetched tokens (thread-safe)
func (w *TokenRegistry) GetAllTokens() []*models.Token {
	w.cacheMutex.RLock()
	defer w.cacheMutex.RUnlock()

	tokens := make([]*models.Token, 0, len(w.static)+len(w.tokenCache))
	for _, t := range w.static {
		tokens = append(tokens, t)
	}
	for k, t := range w.tokenCache {
		if _, shadowed := w.static[k]; !shadowed {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// FetchAndUpdateTokens downloads the token list and replaces the cache.
func (w *TokenRegistry) FetchAndUpdateTokens(ctx context.Context) error {
	w.logger.Info("Fetching token list")

	tokens, err := w.fetchAllTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch token list: %w", err)
	}

	now := time.Now().Unix()
	newCache := make(map[tokenKey]*models.Token, len(tokens))
	for _, t := range tokens {
		if t == nil || t.Symbol == "" || t.Address == "" || t.Decimals < 0 {
			continue
		}
		t.UpdatedAt = now
		newCache[keyFor(t.ChainID, t.Symbol)] = t
	}

	w.cacheMutex.Lock()
	w.tokenCache = newCache
	w.cacheMutex.Unlock()

	w.logger.Info(fmt.Sprintf("Successfully cached %d tokens in memory", len(newCache)))
	return nil
}

// fetchAllTokens follows the list's cursor pagination.
func (w *TokenRegistry) fetchAllTokens(ctx context.Context) ([]*models.Token, error) {
	var all []*models.Token
	cursor := ""

	for {
		u, err := url.Parse(w.listURL)
		if err != nil {
			return nil, fmt.Errorf("invalid token list URL: %w", err)
		}
		if cursor != "" {
			q := u.Query()
			q.Set("cursor", cursor)
			u.RawQuery = q.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tokens list: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
		}

		var page TokensResponse
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode tokens response: %w", err)
		}
		resp.Body.Close()

		all = append(all, page.Tokens...)

		if !page.Pagination.HasNext || page.Pagination.Cursor == "" {
			break
		}
		cursor = page.Pagination.Cursor
	}

	return all, nil
}

// StartPeriodicUpdate starts a goroutine that refreshes the list periodically.
// It does nothing when no list URL is configured.
func (w *TokenRegistry) StartPeriodicUpdate() {
	if w.listURL == "" {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		// Initial fetch with retry logic
		backoff := 5 * time.Second
		maxBackoff := 5 * time.Minute

		for {
			if err := w.FetchAndUpdateTokens(w.ctx); err != nil {
				w.logger.Errorw("Failed to fetch tokens on startup, retrying...", "error", err, "retry_in", backoff)

				select {
				case <-time.After(backoff):
					backoff = backoff * 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
					continue
				case <-w.ctx.Done():
					w.logger.Info("Token registry stopped during initial fetch")
					return
				}
			}
			w.logger.Info("Successfully loaded initial token list")
			break
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.logger.Debug("Starting periodic token update")
				if err := w.FetchAndUpdateTokens(w.ctx); err != nil {
					w.logger.Errorw("Failed to fetch tokens during periodic update", "error", err)
				}
			case <-w.ctx.Done():
				w.logger.Info("Token registry periodic update stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the periodic update
func (w *TokenRegistry) Stop() {
	w.logger.Info("Stopping token registry")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Token registry stopped")
}
