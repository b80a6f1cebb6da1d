package domain

import "errors"

// Failure taxonomy surfaced by the wallet session and marketplace client.
var (
	ErrProviderUnavailable    = errors.New("wallet provider unavailable")
	ErrUserRejected           = errors.New("request rejected by user")
	ErrNoAccountsReturned     = errors.New("wallet returned no accounts")
	ErrConnectFailed          = errors.New("wallet connect failed")
	ErrNetworkNotRegistered   = errors.New("network not added to wallet")
	ErrSwitchFailed           = errors.New("network switch failed")
	ErrContractAddressMissing = errors.New("contract address not found, deploy the contract first")
	ErrEntityNotFound         = errors.New("entity not found on ledger")
	ErrTokenIDNotFound        = errors.New("token id not found in receipt")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrContractReverted       = errors.New("contract reverted")
	ErrNetworkError           = errors.New("network error")
	ErrOperationInProgress    = errors.New("operation already in progress")
	ErrMalformedValue         = errors.New("malformed value")
)

var (
	ErrNotConnected = errors.New("wallet not connected")
	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
)

// RevertError carries the ledger's rejection reason for a transaction or call.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrContractReverted.Error()
	}
	return ErrContractReverted.Error() + ": " + e.Reason
}

func (e *RevertError) Unwrap() error { return ErrContractReverted }

// NewRevertError returns a RevertError, substituting a generic reason when the
// ledger supplied none.
func NewRevertError(reason string) *RevertError {
	if reason == "" {
		reason = "transaction reverted"
	}
	return &RevertError{Reason: reason}
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrOperationInProgress, "operation_in_progress"},
	{ErrUserRejected, "user_rejected"},
	{ErrProviderUnavailable, "provider_unavailable"},
	{ErrNoAccountsReturned, "no_accounts_returned"},
	{ErrConnectFailed, "connect_failed"},
	{ErrNetworkNotRegistered, "network_not_registered"},
	{ErrSwitchFailed, "switch_failed"},
	{ErrContractAddressMissing, "contract_address_missing"},
	{ErrEntityNotFound, "entity_not_found"},
	{ErrTokenIDNotFound, "token_id_not_found"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrContractReverted, "contract_reverted"},
	{ErrNetworkError, "network_error"},
	{ErrMalformedValue, "malformed_value"},
	{ErrNotConnected, "not_connected"},
	{ErrNotFound, "not_found"},
	{ErrRateLimited, "rate_limited"},
	{ErrUnauthorized, "unauthorized"},
}

// ErrorKind returns the snake_case taxonomy name of err, "" for nil and
// "unknown" for errors outside the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
