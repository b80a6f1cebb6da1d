package marketplace

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"regexp"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

const codeUserRejected = 4001

// Errors already in the taxonomy pass through classify untouched.
var classified = []error{
	domain.ErrContractReverted,
	domain.ErrUserRejected,
	domain.ErrInsufficientFunds,
	domain.ErrNetworkError,
	domain.ErrProviderUnavailable,
	domain.ErrNotConnected,
	domain.ErrMalformedValue,
	domain.ErrEntityNotFound,
	domain.ErrTokenIDNotFound,
	domain.ErrOperationInProgress,
	domain.ErrContractAddressMissing,
}

// Node and wallet flavours of a revert message.
var reasonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`reverted with reason string '(.*)'`),
	regexp.MustCompile(`execution reverted: (.+)$`),
	regexp.MustCompile(`revert(?:ed)?: (.+)$`),
}

// classify maps a provider or node failure onto the error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range classified {
		if errors.Is(err, known) {
			return err
		}
	}

	var coded rpc.Error
	if errors.As(err, &coded) && coded.ErrorCode() == codeUserRejected {
		return fmt.Errorf("%w: %w", domain.ErrUserRejected, err)
	}
	if reason, ok := RevertReason(err); ok {
		return domain.NewRevertError(reason)
	}
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return fmt.Errorf("%w: %w", domain.ErrInsufficientFunds, err)
	}
	if isTransport(err) {
		return fmt.Errorf("%w: %w", domain.ErrNetworkError, err)
	}
	return err
}

// RevertReason extracts the ledger's rejection reason from err. ok is false
// when err is not a revert at all; reason may be empty for a bare revert.
func RevertReason(err error) (reason string, ok bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, isStr := dataErr.ErrorData().(string); isStr {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if r, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return r, true
				}
				if len(data) == 0 || strings.Contains(err.Error(), "revert") {
					return "", true
				}
			}
		}
	}

	msg := err.Error()
	for _, re := range reasonPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	if strings.Contains(strings.ToLower(msg), "execution reverted") {
		return "", true
	}
	return "", false
}

func isTransport(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}
