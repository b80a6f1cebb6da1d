package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ItemView is the JSON shape of a MarketItem served to clients and written
// to snapshots. Amounts are decimal wei strings with an ether rendering
// alongside.
type ItemView struct {
	TokenID    string       `json:"tokenId"`
	Seller     string       `json:"seller"`
	Owner      string       `json:"owner"`
	Price      string       `json:"price"`
	PriceEther string       `json:"priceEther"`
	Sold       bool         `json:"sold"`
	IsListed   bool         `json:"isListed"`
	TokenURI   string       `json:"tokenURI,omitempty"`
	Metadata   *NFTMetadata `json:"metadata,omitempty"`
}

// NewItemView renders item.
func NewItemView(item MarketItem) ItemView {
	return ItemView{
		TokenID:    intString(item.TokenID),
		Seller:     addressString(item.Seller),
		Owner:      addressString(item.Owner),
		Price:      intString(item.Price),
		PriceEther: etherString(item.Price),
		Sold:       item.Sold,
		IsListed:   item.IsListed,
	}
}

// AuctionView is an Auction plus the state a bidder needs to act on it.
type AuctionView struct {
	TokenID             string `json:"tokenId"`
	Seller              string `json:"seller"`
	StartingPrice       string `json:"startingPrice"`
	StartingPriceEther  string `json:"startingPriceEther"`
	HighestBid          string `json:"highestBid"`
	HighestBidEther     string `json:"highestBidEther"`
	HighestBidder       string `json:"highestBidder,omitempty"`
	EndTime             int64  `json:"endTime"`
	Active              bool   `json:"active"`
	Ended               bool   `json:"ended"`
	TimeLeft            string `json:"timeLeft"`
	MinimumNextBid      string `json:"minimumNextBid"`
	MinimumNextBidEther string `json:"minimumNextBidEther"`
	IsSeller            bool   `json:"isSeller"`
}

// NewAuctionView derives the bidder-facing state of a at now. viewer is the
// session account, or "" when disconnected.
func NewAuctionView(a Auction, now time.Time, increment *big.Int, viewer string) AuctionView {
	next := a.MinimumNextBid(increment)
	v := AuctionView{
		TokenID:             intString(a.TokenID),
		Seller:              addressString(a.Seller),
		StartingPrice:       intString(a.StartingPrice),
		StartingPriceEther:  etherString(a.StartingPrice),
		HighestBid:          intString(a.HighestBid),
		HighestBidEther:     etherString(a.HighestBid),
		Active:              a.Active,
		Ended:               a.Ended || a.IsEnded(now),
		TimeLeft:            a.TimeRemaining(now).String(),
		MinimumNextBid:      next.String(),
		MinimumNextBidEther: etherString(next),
		IsSeller:            viewer != "" && strings.EqualFold(viewer, a.Seller.Hex()),
	}
	if a.EndTime != nil && a.EndTime.IsInt64() {
		v.EndTime = a.EndTime.Int64()
	}
	if a.HasBid() {
		v.HighestBidder = addressString(a.HighestBidder)
	}
	return v
}

func intString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func etherString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

func addressString(a common.Address) string {
	return strings.ToLower(a.Hex())
}
