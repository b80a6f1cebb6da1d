package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const maxUploadBytes = 32 << 20

// ContentHandler pins token images and metadata documents.
type ContentHandler struct {
	store  domain.ContentStore
	logger *slog.Logger
}

// NewContentHandler creates a ContentHandler. store may be nil when no
// content backend is configured.
func NewContentHandler(store domain.ContentStore, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		store:  store,
		logger: logHandler(logger, "content"),
	}
}

type pinResponse struct {
	URI        string `json:"uri"`
	GatewayURL string `json:"gatewayUrl"`
}

func (h *ContentHandler) configured() bool {
	return h.store != nil && h.store.Configured()
}

// Status reports whether uploads are possible.
// GET /api/content/status
func (h *ContentHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"configured": h.configured()})
}

// PinFile stores the multipart "file" field.
// POST /api/content/file
func (h *ContentHandler) PinFile(w http.ResponseWriter, r *http.Request) {
	if !h.configured() {
		writeDomainError(w, fmt.Errorf("handler: pin file: %w", domain.ErrProviderUnavailable), nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	uri, err := h.store.PinFile(r.Context(), name, file)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pin file failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, nil)
		return
	}
	h.logger.InfoContext(r.Context(), "file pinned", slog.String("name", name), slog.String("uri", uri))
	writeJSON(w, http.StatusOK, pinResponse{URI: uri, GatewayURL: h.store.GatewayURL(uri)})
}

// PinMetadata stores an NFT metadata document.
// POST /api/content/metadata
func (h *ContentHandler) PinMetadata(w http.ResponseWriter, r *http.Request) {
	if !h.configured() {
		writeDomainError(w, fmt.Errorf("handler: pin metadata: %w", domain.ErrProviderUnavailable), nil)
		return
	}
	var meta domain.NFTMetadata
	if err := decodeBody(r, &meta); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	if err := validateMetadata(meta); err != nil {
		writeDomainError(w, err, nil)
		return
	}
	uri, err := h.store.PinJSON(r.Context(), meta.Name, meta)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pin metadata failed", slog.String("error", err.Error()))
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, pinResponse{URI: uri, GatewayURL: h.store.GatewayURL(uri)})
}

func validateMetadata(meta domain.NFTMetadata) error {
	if strings.TrimSpace(meta.Name) == "" {
		return fmt.Errorf("metadata name is required: %w", domain.ErrMalformedValue)
	}
	if strings.TrimSpace(meta.Image) == "" {
		return fmt.Errorf("metadata image is required: %w", domain.ErrMalformedValue)
	}
	return nil
}
