package wallet

import (
	"fmt"
	"sort"
)

// SupportedNetworks lists the chains the marketplace is deployed to.
var SupportedNetworks = map[uint64]string{
	1:        "Ethereum Mainnet",
	11155111: "Sepolia Testnet",
	80001:    "Mumbai Testnet",
	31337:    "Localhost",
}

// Network is a chain id with its display name.
type Network struct {
	ChainID uint64 `json:"chainId"`
	Name    string `json:"name"`
}

// Networks returns SupportedNetworks ordered by chain id.
func Networks() []Network {
	out := make([]Network, 0, len(SupportedNetworks))
	for id, name := range SupportedNetworks {
		out = append(out, Network{ChainID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// NetworkName returns the display name of chainID.
func NetworkName(chainID uint64) string {
	if name, ok := SupportedNetworks[chainID]; ok {
		return name
	}
	return fmt.Sprintf("Chain %d", chainID)
}

// IsSupported reports whether chainID is in SupportedNetworks.
func IsSupported(chainID uint64) bool {
	_, ok := SupportedNetworks[chainID]
	return ok
}
