// Package pinata pins token images and metadata documents to IPFS through the
// Pinata pinning API.
package pinata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const (
	DefaultAPIURL     = "https://api.pinata.cloud"
	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs/"

	maxErrorBody = 4 << 10
)

// Config holds Pinata credentials. JWT takes precedence over the key pair.
type Config struct {
	JWT          string
	APIKey       string
	SecretAPIKey string
	APIURL       string
	GatewayURL   string
}

// IsConfigured reports whether any usable credential is present.
func (c Config) IsConfigured() bool {
	return c.JWT != "" || (c.APIKey != "" && c.SecretAPIKey != "")
}

// Client is the REST client for the Pinata pinning API. It implements
// domain.ContentStore.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Pinata client. Empty URLs fall back to the public defaults.
func New(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	if !strings.HasSuffix(cfg.GatewayURL, "/") {
		cfg.GatewayURL += "/"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool { return c.cfg.IsConfigured() }

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type apiError struct {
	Message string `json:"message"`
	Error   any    `json:"error"`
}

// PinFile uploads data under name and returns its ipfs:// URI.
func (c *Client) PinFile(ctx context.Context, name string, data io.Reader) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("pinata: pin file: credentials not configured: %w", domain.ErrProviderUnavailable)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("pinata: pin file: create form: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return "", fmt.Errorf("pinata: pin file: copy: %w", err)
	}
	meta, _ := json.Marshal(map[string]string{"name": name})
	_ = mw.WriteField("pinataMetadata", string(meta))
	_ = mw.WriteField("pinataOptions", `{"cidVersion":1}`)
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("pinata: pin file: close form: %w", err)
	}

	resp, err := c.doPost(ctx, "/pinning/pinFileToIPFS", mw.FormDataContentType(), &body)
	if err != nil {
		return "", fmt.Errorf("pinata: pin file %s: %w", name, err)
	}
	return "ipfs://" + resp.IpfsHash, nil
}

// PinJSON uploads doc as a JSON document and returns its ipfs:// URI.
func (c *Client) PinJSON(ctx context.Context, name string, doc any) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("pinata: pin json: credentials not configured: %w", domain.ErrProviderUnavailable)
	}

	payload, err := json.Marshal(map[string]any{
		"pinataContent":  doc,
		"pinataMetadata": map[string]string{"name": name},
	})
	if err != nil {
		return "", fmt.Errorf("pinata: pin json: marshal: %w", err)
	}

	resp, err := c.doPost(ctx, "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("pinata: pin json %s: %w", name, err)
	}
	return "ipfs://" + resp.IpfsHash, nil
}

// GatewayURL maps ipfs:// URIs and bare CIDs onto the HTTP gateway. https://
// URLs pass through unchanged.
func (c *Client) GatewayURL(uri string) string {
	return GatewayURL(c.cfg.GatewayURL, uri)
}

// GatewayURL resolves uri against gateway, which must end in '/'.
func GatewayURL(gateway, uri string) string {
	uri = strings.TrimSpace(uri)
	switch {
	case uri == "":
		return ""
	case strings.HasPrefix(uri, "ipfs://"):
		return gateway + strings.TrimPrefix(strings.TrimPrefix(uri, "ipfs://"), "ipfs/")
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return uri
	default:
		return gateway + uri
	}
}

func (c *Client) doPost(ctx context.Context, path, contentType string, body io.Reader) (pinResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+path, body)
	if err != nil {
		return pinResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.cfg.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.JWT)
	} else {
		req.Header.Set("pinata_api_key", c.cfg.APIKey)
		req.Header.Set("pinata_secret_api_key", c.cfg.SecretAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pinResponse{}, fmt.Errorf("http request: %w: %w", domain.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pinResponse{}, statusError(resp.StatusCode, raw)
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pinResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if out.IpfsHash == "" {
		return pinResponse{}, fmt.Errorf("response carries no IpfsHash: %w", domain.ErrMalformedValue)
	}
	return out, nil
}

func statusError(code int, raw []byte) error {
	msg := strings.TrimSpace(string(raw))
	var ae apiError
	if json.Unmarshal(raw, &ae) == nil {
		switch {
		case ae.Message != "":
			msg = ae.Message
		case ae.Error != nil:
			msg = fmt.Sprint(ae.Error)
		}
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("status %d: %s: %w", code, msg, domain.ErrProviderUnavailable)
	case code >= 500:
		return fmt.Errorf("status %d: %s: %w", code, msg, domain.ErrNetworkError)
	default:
		return fmt.Errorf("status %d: %s", code, msg)
	}
}

// Compile-time interface check.
var _ domain.ContentStore = (*Client)(nil)
