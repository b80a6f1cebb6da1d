package domain

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultBidIncrement is 0.001 ether in wei.
var DefaultBidIncrement = big.NewInt(1_000_000_000_000_000)

// Auction is the ledger's record of a timed auction for a token.
type Auction struct {
	TokenID       *big.Int
	Seller        common.Address
	StartingPrice *big.Int
	HighestBid    *big.Int
	HighestBidder common.Address
	EndTime       *big.Int // unix seconds
	Active        bool
	Ended         bool
}

// Exists reports whether the ledger returned a populated record.
func (a Auction) Exists() bool {
	return a.TokenID != nil && a.TokenID.Sign() > 0
}

// HasBid reports whether any bid has been placed.
func (a Auction) HasBid() bool {
	return a.HighestBid != nil && a.HighestBid.Sign() > 0
}

// Validate checks the record's invariants.
func (a Auction) Validate() error {
	if a.Ended && a.Active {
		return fmt.Errorf("auction %s: ended auction is still active: %w", a.TokenID, ErrMalformedValue)
	}
	if !a.HasBid() && a.HighestBidder != (common.Address{}) {
		return fmt.Errorf("auction %s: bidder recorded without a bid: %w", a.TokenID, ErrMalformedValue)
	}
	if a.HasBid() && a.StartingPrice != nil && a.HighestBid.Cmp(a.StartingPrice) < 0 {
		return fmt.Errorf("auction %s: highest bid below starting price: %w", a.TokenID, ErrMalformedValue)
	}
	return nil
}

// IsEnded reports whether now is at or past the auction's end time. This is
// the displayed state; the ledger's Ended flag only flips once endAuction is
// confirmed.
func (a Auction) IsEnded(now time.Time) bool {
	return a.secondsLeft(now) <= 0
}

// TimeRemaining returns the time left until the end time, floored at zero.
func (a Auction) TimeRemaining(now time.Time) Remaining {
	secs := a.secondsLeft(now)
	if secs <= 0 {
		return Remaining{}
	}
	if secs > math.MaxInt64/int64(time.Second) {
		secs = math.MaxInt64 / int64(time.Second)
	}
	return Remaining{Total: time.Duration(secs) * time.Second}
}

// MinimumNextBid is the advisory lowest bid worth submitting: the highest bid
// plus increment once a bid exists, otherwise the starting price. The ledger
// remains the only validator.
func (a Auction) MinimumNextBid(increment *big.Int) *big.Int {
	if !a.HasBid() {
		if a.StartingPrice == nil {
			return new(big.Int)
		}
		return new(big.Int).Set(a.StartingPrice)
	}
	if increment == nil {
		increment = DefaultBidIncrement
	}
	return new(big.Int).Add(a.HighestBid, increment)
}

func (a Auction) secondsLeft(now time.Time) int64 {
	if a.EndTime == nil {
		return 0
	}
	left := new(big.Int).Sub(a.EndTime, big.NewInt(now.Unix()))
	if !left.IsInt64() {
		if left.Sign() > 0 {
			return math.MaxInt64
		}
		return 0
	}
	return left.Int64()
}

// Remaining is a non-negative countdown.
type Remaining struct {
	Total time.Duration
}

// Days returns the whole days left.
func (r Remaining) Days() int64 { return int64(r.Total / (24 * time.Hour)) }

// Hours returns the whole hours left, uncapped.
func (r Remaining) Hours() int64 { return int64(r.Total / time.Hour) }

// Minutes returns the minutes component (0-59).
func (r Remaining) Minutes() int64 { return int64(r.Total/time.Minute) % 60 }

// Seconds returns the seconds component (0-59).
func (r Remaining) Seconds() int64 { return int64(r.Total/time.Second) % 60 }

// String renders "Ended", "<d>d <h>h" beyond a day, or "<h>h <m>m <s>s".
func (r Remaining) String() string {
	if r.Total <= 0 {
		return "Ended"
	}
	h := r.Hours()
	if h > 24 {
		return fmt.Sprintf("%dd %dh", r.Days(), h%24)
	}
	return fmt.Sprintf("%dh %dm %ds", h, r.Minutes(), r.Seconds())
}
