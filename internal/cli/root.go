// Package cli implements nebulactl, the operator command line for the
// marketplace. Every command wires the same dependencies the server does and
// prints JSON to stdout.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/app"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/config"
)

// offline marks commands that run without dialing the ledger.
const offline = "offline"

// env is the state shared by every command of one invocation.
type env struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	deps    *app.Dependencies
	cleanup func()
	stderr  io.Writer
}

// newRoot builds the nebulactl command tree. The caller closes the returned
// env once the command has run.
func newRoot() (*cobra.Command, *env) {
	e := &env{stderr: os.Stderr}

	root := &cobra.Command{
		Use:   "nebulactl",
		Short: "Operate the NFT marketplace from the terminal",
		Long: `nebulactl reads and writes the NFT marketplace contract using the wallet
configured in config.toml.

Example:
  nebulactl items
  nebulactl mint ipfs://bafy.../1.json
  nebulactl list 1 0.5
  nebulactl auction create 1 0.5 --hours 24`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e.stderr = cmd.ErrOrStderr()
			return e.init(cmd.Context(), cmd.Annotations[offline] == "true")
		},
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "config.toml", "path to configuration file")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(
		newSessionCmd(e),
		newNetworksCmd(),
		newItemsCmd(e),
		newItemCmd(e),
		newFeesCmd(e),
		newMintCmd(e),
		newListCmd(e),
		newCancelCmd(e),
		newBuyCmd(e),
		newTransferCmd(e),
		newAuctionCmd(e),
		newEncryptKeyCmd(e),
		newArchiveCmd(e),
		newJournalCmd(e),
	)
	return root, e
}

// Execute runs nebulactl with os.Args.
func Execute(ctx context.Context) error {
	root, e := newRoot()
	defer e.close()
	return root.ExecuteContext(ctx)
}

func (e *env) init(ctx context.Context, skipWire bool) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", e.configPath, err)
	}
	e.cfg = cfg
	if skipWire {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelWarn
	if e.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: level}))

	deps, cleanup, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	e.deps = deps
	e.cleanup = cleanup
	deps.Wallet.Start(ctx)
	return nil
}

func (e *env) close() {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}

// connect returns once a wallet session is live.
func (e *env) connect(ctx context.Context) error {
	if e.deps.Wallet.Session().Connected() {
		return nil
	}
	_, err := e.deps.Wallet.Connect(ctx)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
