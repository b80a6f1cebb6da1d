package cli

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/app"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/wallet"
)

type sessionView struct {
	Account   string `json:"account"`
	ChainID   uint64 `json:"chainId"`
	Network   string `json:"network,omitempty"`
	State     string `json:"state"`
	Supported bool   `json:"supported"`
}

func newSessionView(s domain.WalletSession) sessionView {
	v := sessionView{Account: s.Account, ChainID: s.ChainID, State: s.State().String()}
	if s.ChainID != 0 {
		v.Network = wallet.NetworkName(s.ChainID)
		v.Supported = wallet.IsSupported(s.ChainID)
	}
	return v
}

func newSessionCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the wallet session",
		Long:  `Show the wallet session restored at startup. Use "session connect" to request access.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), newSessionView(e.deps.Wallet.Session()))
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "connect",
		Short: "Request wallet access and show the resulting session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := e.deps.Wallet.Connect(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newSessionView(s))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "switch <chain-id>",
		Short: "Ask the wallet to change networks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, err := normalize.ChainID(args[0])
			if err != nil {
				return err
			}
			return e.deps.Wallet.SwitchNetwork(cmd.Context(), chainID)
		},
	})
	return cmd
}

func newNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "networks",
		Short:       "List the supported networks",
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), wallet.Networks())
		},
	}
}

func newItemsCmd(e *env) *cobra.Command {
	var mine, listed bool
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List unsold marketplace items",
		Example: `  nebulactl items
  nebulactl items --mine
  nebulactl items --listed`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				items []domain.MarketItem
				err   error
			)
			switch {
			case mine || listed:
				if err := e.connect(ctx); err != nil {
					return err
				}
				me := common.HexToAddress(e.deps.Wallet.Session().Account)
				if mine {
					items, err = e.deps.Market.FetchMyNFTs(ctx, me)
				} else {
					items, err = e.deps.Market.FetchItemsListed(ctx, me)
				}
			default:
				items, err = e.deps.Market.FetchMarketItems(ctx)
			}
			if err != nil {
				return err
			}
			views := make([]domain.ItemView, 0, len(items))
			for _, it := range items {
				views = append(views, domain.NewItemView(it))
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "list tokens owned by the connected account")
	cmd.Flags().BoolVar(&listed, "listed", false, "list items the connected account has for sale")
	cmd.MarkFlagsMutuallyExclusive("mine", "listed")
	return cmd
}

func newItemCmd(e *env) *cobra.Command {
	var withMetadata bool
	cmd := &cobra.Command{
		Use:   "item <token-id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := tokenIDArg(args[0])
			if err != nil {
				return err
			}
			item, err := e.deps.Market.GetMarketItem(ctx, id)
			if err != nil {
				return err
			}
			view := domain.NewItemView(item)
			if withMetadata {
				uri, meta, err := e.deps.Metadata.Resolve(ctx, id)
				if err != nil {
					return err
				}
				view.TokenURI = uri
				view.Metadata = &meta
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().BoolVar(&withMetadata, "metadata", false, "resolve and include the token metadata")
	return cmd
}

func newFeesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "fees",
		Short: "Show the listing and minting fees",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			listing, err := e.deps.Market.GetListingPrice(ctx)
			if err != nil {
				return err
			}
			minting, err := e.deps.Market.GetMintingPrice(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"listingPrice":      listing.String(),
				"listingPriceEther": marketplace.FormatEther(listing),
				"mintingPrice":      minting.String(),
				"mintingPriceEther": marketplace.FormatEther(minting),
			})
		},
	}
}

func (e *env) auctionView(a domain.Auction) domain.AuctionView {
	return domain.NewAuctionView(a, time.Now(), app.BidIncrement(e.cfg), e.deps.Wallet.Session().Account)
}

func newAuctionListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List active auctions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			auctions, err := e.deps.Market.FetchActiveAuctions(cmd.Context())
			if err != nil {
				return err
			}
			views := make([]domain.AuctionView, 0, len(auctions))
			for _, a := range auctions {
				views = append(views, e.auctionView(a))
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}
}

func newAuctionShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <token-id>",
		Short: "Show one auction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return err
			}
			a, err := e.deps.Market.GetAuction(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), e.auctionView(a))
		},
	}
}

func tokenIDArg(s string) (*big.Int, error) {
	id, err := normalize.WideInt(s)
	if err != nil {
		return nil, fmt.Errorf("token id %q: %w", s, err)
	}
	if id.Sign() <= 0 {
		return nil, fmt.Errorf("token id must be positive: %w", domain.ErrMalformedValue)
	}
	return id, nil
}
