package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

type receiptView struct {
	TxHash      string `json:"txHash"`
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed"`
	TokenID     string `json:"tokenId,omitempty"`
	TokenURI    string `json:"tokenURI,omitempty"`
	To          string `json:"to,omitempty"`
}

func newReceiptView(r *types.Receipt) receiptView {
	v := receiptView{TxHash: r.TxHash.Hex(), Status: "confirmed", GasUsed: r.GasUsed}
	if r.Status != types.ReceiptStatusSuccessful {
		v.Status = "failed"
	}
	if r.BlockNumber != nil {
		v.BlockNumber = r.BlockNumber.String()
	}
	return v
}

// writeCmd builds a command that connects the wallet, runs one write and
// prints its receipt.
func writeCmd(e *env, use, short string, nargs int, run func(cmd *cobra.Command, args []string) (*types.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.connect(cmd.Context()); err != nil {
				return err
			}
			receipt, err := run(cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newReceiptView(receipt))
		},
	}
}

func newMintCmd(e *env) *cobra.Command {
	var metadataPath, imagePath string
	cmd := &cobra.Command{
		Use:   "mint [token-uri]",
		Short: "Mint a token",
		Long: `Mint a token for a metadata URI. With --metadata the document is pinned
first; --image pins an image and sets it as the document's image.`,
		Example: `  nebulactl mint ipfs://bafy.../1.json
  nebulactl mint --metadata token.json --image art.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var uri string
			switch {
			case len(args) == 1 && metadataPath == "":
				uri = strings.TrimSpace(args[0])
			case len(args) == 0 && metadataPath != "":
				pinned, err := e.pinMetadata(cmd, metadataPath, imagePath)
				if err != nil {
					return err
				}
				uri = pinned
			default:
				return errors.New("pass either a token URI or --metadata")
			}
			if uri == "" {
				return fmt.Errorf("token URI is required: %w", domain.ErrMalformedValue)
			}

			if err := e.connect(ctx); err != nil {
				return err
			}
			tokenID, receipt, err := e.deps.Executor.Mint(ctx, uri)
			if err != nil {
				return err
			}
			v := newReceiptView(receipt)
			v.TokenURI = uri
			if tokenID != nil {
				v.TokenID = tokenID.String()
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVar(&metadataPath, "metadata", "", "JSON metadata document to pin and mint")
	cmd.Flags().StringVar(&imagePath, "image", "", "image file to pin as the metadata image")
	return cmd
}

func (e *env) pinMetadata(cmd *cobra.Command, metadataPath, imagePath string) (string, error) {
	store := e.deps.ContentStore
	if store == nil || !store.Configured() {
		return "", fmt.Errorf("content pinning: %w", domain.ErrProviderUnavailable)
	}
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return "", err
	}
	var meta domain.NFTMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", fmt.Errorf("metadata %s: %w: %w", metadataPath, domain.ErrMalformedValue, err)
	}

	if imagePath != "" {
		f, err := os.Open(imagePath)
		if err != nil {
			return "", err
		}
		defer f.Close()
		imageURI, err := store.PinFile(cmd.Context(), filepath.Base(imagePath), f)
		if err != nil {
			return "", err
		}
		meta.Image = imageURI
	}
	if strings.TrimSpace(meta.Name) == "" || strings.TrimSpace(meta.Image) == "" {
		return "", fmt.Errorf("metadata needs a name and an image: %w", domain.ErrMalformedValue)
	}
	return store.PinJSON(cmd.Context(), meta.Name, meta)
}

func newListCmd(e *env) *cobra.Command {
	return writeCmd(e, "list <token-id> <price-eth>", "List a token for sale", 2,
		func(cmd *cobra.Command, args []string) (*types.Receipt, error) {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return nil, err
			}
			price, err := positiveEther(args[1])
			if err != nil {
				return nil, err
			}
			return e.deps.Executor.List(cmd.Context(), id, price)
		})
}

func newCancelCmd(e *env) *cobra.Command {
	return writeCmd(e, "cancel <token-id>", "Cancel a listing", 1,
		func(cmd *cobra.Command, args []string) (*types.Receipt, error) {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return nil, err
			}
			return e.deps.Executor.CancelListing(cmd.Context(), id)
		})
}

func newBuyCmd(e *env) *cobra.Command {
	return writeCmd(e, "buy <token-id>", "Buy a listed token at its asking price", 1,
		func(cmd *cobra.Command, args []string) (*types.Receipt, error) {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return nil, err
			}
			item, err := e.deps.Market.GetMarketItem(cmd.Context(), id)
			if err != nil {
				return nil, err
			}
			return e.deps.Executor.Buy(cmd.Context(), id, item.Price)
		})
}

func newTransferCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <token-id> <to>",
		Short: "Transfer a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return err
			}
			to, err := normalize.Address(args[1])
			if err != nil {
				return err
			}
			if err := e.connect(cmd.Context()); err != nil {
				return err
			}
			receipt, err := e.deps.Executor.Transfer(cmd.Context(), to, id)
			if err != nil {
				return err
			}
			v := newReceiptView(receipt)
			v.To = normalize.DisplayAddress(args[1])
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

func newAuctionCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auction",
		Short: "Create, bid on and settle auctions",
	}

	var hours uint64
	create := writeCmd(e, "create <token-id> <starting-price-eth>", "Start an auction", 2,
		func(cmd *cobra.Command, args []string) (*types.Receipt, error) {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return nil, err
			}
			start, err := positiveEther(args[1])
			if err != nil {
				return nil, err
			}
			if hours == 0 {
				return nil, fmt.Errorf("--hours must be positive: %w", domain.ErrMalformedValue)
			}
			return e.deps.Executor.CreateAuction(cmd.Context(), id, start, hours*3600)
		})
	create.Flags().Uint64Var(&hours, "hours", 24, "auction duration in hours")

	bid := writeCmd(e, "bid <token-id> <amount-eth>", "Place a bid", 2,
		func(cmd *cobra.Command, args []string) (*types.Receipt, error) {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return nil, err
			}
			amount, err := positiveEther(args[1])
			if err != nil {
				return nil, err
			}
			return e.deps.Executor.PlaceBid(cmd.Context(), id, amount)
		})

	end := writeCmd(e, "end <token-id>", "Settle an auction after its end time", 1,
		func(cmd *cobra.Command, args []string) (*types.Receipt, error) {
			id, err := tokenIDArg(args[0])
			if err != nil {
				return nil, err
			}
			return e.deps.Executor.EndAuction(cmd.Context(), id)
		})

	cmd.AddCommand(newAuctionListCmd(e), newAuctionShowCmd(e), create, bid, end)
	return cmd
}

func positiveEther(s string) (*big.Int, error) {
	wei, err := marketplace.ParseEther(s)
	if err != nil {
		return nil, err
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be greater than zero: %w", s, domain.ErrMalformedValue)
	}
	return wei, nil
}
