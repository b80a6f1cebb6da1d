package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const maxMetadataBytes = 1 << 20

// MetadataResolver follows a token's URI to its metadata document.
type MetadataResolver struct {
	client     *Client
	gateway    func(uri string) string
	cache      domain.ReadCache
	ttl        time.Duration
	httpClient *http.Client
}

// NewMetadataResolver creates a resolver. gateway rewrites content URIs into
// fetchable URLs; cache may be nil.
func NewMetadataResolver(client *Client, gateway func(string) string, cache domain.ReadCache, ttl time.Duration) *MetadataResolver {
	if gateway == nil {
		gateway = func(s string) string { return s }
	}
	return &MetadataResolver{
		client:  client,
		gateway: gateway,
		cache:   cache,
		ttl:     ttl,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Resolve returns the token's URI and the document it points at.
func (r *MetadataResolver) Resolve(ctx context.Context, tokenID *big.Int) (string, domain.NFTMetadata, error) {
	uri, err := r.client.GetTokenURI(ctx, tokenID)
	if err != nil {
		return "", domain.NFTMetadata{}, err
	}
	if uri == "" {
		return "", domain.NFTMetadata{}, fmt.Errorf("marketplace: token %s has no uri: %w", tokenID, domain.ErrEntityNotFound)
	}
	meta, err := r.Fetch(ctx, uri)
	return uri, meta, err
}

// Fetch downloads and decodes the metadata document at uri.
func (r *MetadataResolver) Fetch(ctx context.Context, uri string) (domain.NFTMetadata, error) {
	key := "meta:" + uri
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil && len(raw) > 0 {
			var meta domain.NFTMetadata
			if json.Unmarshal(raw, &meta) == nil {
				return meta, nil
			}
		}
	}

	body, err := r.get(ctx, r.gateway(uri))
	if err != nil {
		return domain.NFTMetadata{}, fmt.Errorf("marketplace: fetch metadata %s: %w", uri, err)
	}
	var meta domain.NFTMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return domain.NFTMetadata{}, fmt.Errorf("marketplace: decode metadata %s: %w: %w", uri, domain.ErrMalformedValue, err)
	}
	if strings.TrimSpace(meta.Image) != "" {
		meta.Image = r.gateway(meta.Image)
	}

	if r.cache != nil {
		if raw, err := json.Marshal(meta); err == nil {
			_ = r.cache.Set(ctx, key, raw, r.ttl)
		}
	}
	return meta, nil
}

func (r *MetadataResolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", domain.ErrMalformedValue, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", domain.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrNetworkError, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrNotFound)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrNetworkError)
	}
	return body, nil
}
