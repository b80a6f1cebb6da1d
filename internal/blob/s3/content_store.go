package s3blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

// maxContentSize bounds a single pinned file.
const maxContentSize = 64 << 20

// ContentStore implements domain.ContentStore on an S3 bucket. Objects are
// content-addressed under content/<sha256>/<name>, so pinning the same bytes
// twice yields the same URI.
type ContentStore struct {
	writer *Writer
	client *Client
}

// NewContentStore creates a ContentStore writing through c.
func NewContentStore(c *Client) *ContentStore {
	return &ContentStore{writer: NewWriter(c), client: c}
}

// Configured reports true; an S3 store only exists once the bucket is set.
func (cs *ContentStore) Configured() bool { return cs.client != nil }

// PinFile uploads data and returns its public URL.
func (cs *ContentStore) PinFile(ctx context.Context, name string, data io.Reader) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(data, maxContentSize+1))
	if err != nil {
		return "", fmt.Errorf("s3blob: pin file %s: read: %w", name, err)
	}
	if len(buf) > maxContentSize {
		return "", fmt.Errorf("s3blob: pin file %s: larger than %d bytes: %w", name, maxContentSize, domain.ErrMalformedValue)
	}
	return cs.put(ctx, name, buf, detectContentType(name, buf))
}

// PinJSON uploads doc as a JSON document and returns its public URL.
func (cs *ContentStore) PinJSON(ctx context.Context, name string, doc any) (string, error) {
	buf, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("s3blob: pin json %s: %w", name, err)
	}
	if path.Ext(name) == "" {
		name += ".json"
	}
	return cs.put(ctx, name, buf, "application/json")
}

func (cs *ContentStore) put(ctx context.Context, name string, buf []byte, contentType string) (string, error) {
	key := contentKey(name, buf)
	var err error
	if int64(len(buf)) > minPartSize {
		err = cs.writer.PutMultipart(ctx, key, bytes.NewReader(buf), contentType, minPartSize)
	} else {
		err = cs.writer.Put(ctx, key, bytes.NewReader(buf), contentType)
	}
	if err != nil {
		return "", err
	}
	return cs.client.ObjectURL(key), nil
}

// GatewayURL returns uri unchanged; S3 URIs are already fetchable.
func (cs *ContentStore) GatewayURL(uri string) string { return uri }

// contentKey derives the object key from the content hash and a sanitised
// file name.
func contentKey(name string, data []byte) string {
	sum := sha256.Sum256(data)
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "content"
	}
	return "content/" + hex.EncodeToString(sum[:]) + "/" + base
}

func detectContentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// Compile-time interface check.
var _ domain.ContentStore = (*ContentStore)(nil)
