// Package marketplace is the typed client for the NFTMarketplace contract:
// address resolution, read queries normalised into domain values, and
// submit-then-confirm writes.
package marketplace

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

// DefaultContractName keys the marketplace in a deployment record.
const DefaultContractName = "NFTMarketplace"

//go:embed abi/NFTMarketplace.json
var artifactJSON []byte

var contractABI = mustParseArtifact(artifactJSON)

// ABI returns the marketplace contract interface.
func ABI() abi.ABI { return contractABI }

func mustParseArtifact(data []byte) abi.ABI {
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(data, &artifact); err != nil {
		panic(fmt.Sprintf("marketplace: decode artifact: %v", err))
	}
	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		panic(fmt.Sprintf("marketplace: parse abi: %v", err))
	}
	return parsed
}

// ResolveAddress returns the contract address: override when set, else the
// entry for contractName in the deployment record at deploymentFile.
func ResolveAddress(override, deploymentFile, contractName string) (common.Address, error) {
	if s := strings.TrimSpace(override); s != "" {
		addr, err := normalize.Address(s)
		if err != nil {
			return common.Address{}, fmt.Errorf("marketplace: contract address override: %w", err)
		}
		return addr, nil
	}
	if deploymentFile == "" {
		return common.Address{}, domain.ErrContractAddressMissing
	}
	if contractName == "" {
		contractName = DefaultContractName
	}

	data, err := os.ReadFile(deploymentFile)
	if errors.Is(err, fs.ErrNotExist) {
		return common.Address{}, fmt.Errorf("marketplace: deployment record %s: %w", deploymentFile, domain.ErrContractAddressMissing)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("marketplace: read deployment record: %w", err)
	}
	var record map[string]string
	if err := json.Unmarshal(data, &record); err != nil {
		return common.Address{}, fmt.Errorf("marketplace: decode deployment record: %w: %w", domain.ErrMalformedValue, err)
	}
	s := strings.TrimSpace(record[contractName])
	if s == "" {
		return common.Address{}, fmt.Errorf("marketplace: %s not in deployment record: %w", contractName, domain.ErrContractAddressMissing)
	}
	addr, err := normalize.Address(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("marketplace: deployment record: %w", err)
	}
	return addr, nil
}

// WriteDeploymentRecord stores addr under contractName in path, keeping any
// other entries already there.
func WriteDeploymentRecord(path, contractName string, addr common.Address) error {
	record := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("marketplace: decode deployment record: %w: %w", domain.ErrMalformedValue, err)
		}
	}
	if contractName == "" {
		contractName = DefaultContractName
	}
	record[contractName] = addr.Hex()
	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marketplace: encode deployment record: %w", err)
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}

// MarketItemTuple is the contract's MarketItem struct. Field names follow
// the ABI component names so the abi package can map them both ways.
type MarketItemTuple struct {
	TokenId  *big.Int
	Seller   common.Address
	Owner    common.Address
	Price    *big.Int
	Sold     bool
	IsListed bool
}

// AuctionTuple is the contract's Auction struct.
type AuctionTuple struct {
	TokenId       *big.Int
	Seller        common.Address
	StartingPrice *big.Int
	HighestBid    *big.Int
	HighestBidder common.Address
	EndTime       *big.Int
	Active        bool
	Ended         bool
}

// NewMarketItemTuple converts a domain item to the contract's tuple shape.
func NewMarketItemTuple(m domain.MarketItem) MarketItemTuple {
	return MarketItemTuple{
		TokenId:  orZero(m.TokenID),
		Seller:   m.Seller,
		Owner:    m.Owner,
		Price:    orZero(m.Price),
		Sold:     m.Sold,
		IsListed: m.IsListed,
	}
}

// NewAuctionTuple converts a domain auction to the contract's tuple shape.
func NewAuctionTuple(a domain.Auction) AuctionTuple {
	return AuctionTuple{
		TokenId:       orZero(a.TokenID),
		Seller:        a.Seller,
		StartingPrice: orZero(a.StartingPrice),
		HighestBid:    orZero(a.HighestBid),
		HighestBidder: a.HighestBidder,
		EndTime:       orZero(a.EndTime),
		Active:        a.Active,
		Ended:         a.Ended,
	}
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

func (t MarketItemTuple) toDomain() (domain.MarketItem, error) {
	id, err := normalize.WideInt(t.TokenId)
	if err != nil {
		return domain.MarketItem{}, err
	}
	price, err := normalize.WideInt(t.Price)
	if err != nil {
		return domain.MarketItem{}, err
	}
	item := domain.MarketItem{
		TokenID:  id,
		Seller:   t.Seller,
		Owner:    t.Owner,
		Price:    price,
		Sold:     t.Sold,
		IsListed: t.IsListed,
	}
	if err := item.Validate(); err != nil {
		return domain.MarketItem{}, err
	}
	return item, nil
}

func (t AuctionTuple) toDomain() (domain.Auction, error) {
	var out domain.Auction
	fields := []struct {
		dst **big.Int
		src *big.Int
	}{
		{&out.TokenID, t.TokenId},
		{&out.StartingPrice, t.StartingPrice},
		{&out.HighestBid, t.HighestBid},
		{&out.EndTime, t.EndTime},
	}
	for _, f := range fields {
		n, err := normalize.WideInt(f.src)
		if err != nil {
			return domain.Auction{}, err
		}
		*f.dst = n
	}
	out.Seller = t.Seller
	out.HighestBidder = t.HighestBidder
	out.Active = t.Active
	out.Ended = t.Ended
	if err := out.Validate(); err != nil {
		return domain.Auction{}, err
	}
	return out, nil
}
