package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorResponse is the body of a failed request that reached the domain.
type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
	TxHash string `json:"txHash,omitempty"`
}

// writeDomainError maps err onto a status code and writes it. receipt is the
// mined receipt of a reverted write, if any.
func writeDomainError(w http.ResponseWriter, err error, receipt *types.Receipt) {
	resp := errorResponse{
		Error: err.Error(),
		Kind:  domain.ErrorKind(err),
	}
	var rev *domain.RevertError
	if errors.As(err, &rev) {
		resp.Reason = rev.Reason
	}
	if receipt != nil {
		resp.TxHash = receipt.TxHash.Hex()
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor maps the failure taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOperationInProgress), errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrEntityNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrContractReverted), errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrNetworkNotRegistered):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrMalformedValue):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNetworkError), errors.Is(err, domain.ErrConnectFailed),
		errors.Is(err, domain.ErrNoAccountsReturned), errors.Is(err, domain.ErrSwitchFailed),
		errors.Is(err, domain.ErrTokenIDNotFound):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrContractAddressMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w: %w", domain.ErrMalformedValue, err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// tokenIDParam parses the {id} path segment.
func tokenIDParam(r *http.Request) (*big.Int, error) {
	return tokenID(pathParam(r, "id"))
}

func tokenID(s string) (*big.Int, error) {
	id, err := normalize.WideInt(s)
	if err != nil {
		return nil, err
	}
	if id.Sign() == 0 {
		return nil, fmt.Errorf("token id must be positive: %w", domain.ErrMalformedValue)
	}
	return id, nil
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("handler", handler))
}

// cached serves load through the read cache. A nil cache or non-positive
// ttl bypasses it; cache failures fall back to the ledger.
func cached[T any](ctx context.Context, c domain.ReadCache, ttl time.Duration, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return load(ctx)
	}
	if raw, err := c.Get(ctx, key); err == nil {
		var v T
		if json.Unmarshal(raw, &v) == nil {
			return v, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return v, nil
}
