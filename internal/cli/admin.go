package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/crypto"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

func newEncryptKeyCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "encrypt-key",
		Short: "Seal the wallet private key into an encrypted key file",
		Long: `Read the private key from NEBULA_WALLET_PRIVATE_KEY (or wallet.private_key)
and the password from NEBULA_WALLET_KEY_PASSWORD (or wallet.key_password), and
write an encrypted key file usable as wallet.encrypted_key_path.`,
		Example:     `  NEBULA_WALLET_PRIVATE_KEY=0x... NEBULA_WALLET_KEY_PASSWORD=... nebulactl encrypt-key --out wallet.key`,
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := strings.TrimSpace(e.cfg.Wallet.PrivateKey)
			password := e.cfg.Wallet.KeyPassword
			if key == "" {
				return errors.New("no private key configured")
			}
			if password == "" {
				return errors.New("no key password configured")
			}
			sealed, err := crypto.EncryptKey(key, password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, sealed, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "wallet.key", "path of the key file to write")
	return cmd
}

func newArchiveCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export marketplace snapshots and the operation journal to object storage",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "Write a snapshot of items and active auctions now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.deps.Archiver == nil {
				return errors.New("archive: s3 is not enabled")
			}
			ctx := cmd.Context()
			items, err := e.deps.Market.FetchMarketItems(ctx)
			if err != nil {
				return err
			}
			auctions, err := e.deps.Market.FetchActiveAuctions(ctx)
			if err != nil {
				return err
			}
			path, err := e.deps.Archiver.ArchiveSnapshot(ctx, items, auctions, time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"path":     path,
				"items":    len(items),
				"auctions": len(auctions),
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.deps.BlobReader == nil || e.deps.Archiver == nil {
				return errors.New("archive: s3 is not enabled")
			}
			blobs, err := e.deps.BlobReader.List(cmd.Context(), e.deps.Archiver.SnapshotPrefix())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), blobs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the newest stored snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.deps.Archiver == nil {
				return errors.New("archive: s3 is not enabled")
			}
			key, snap, err := e.deps.Archiver.LatestSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"path":     key,
				"snapshot": snap,
			})
		},
	})

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.deps.Archiver == nil {
				return errors.New("archive: s3 is not enabled")
			}
			n, err := e.deps.Archiver.PruneSnapshots(cmd.Context(), keep)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"removed": n, "kept": keep})
		},
	}
	prune.Flags().IntVar(&keep, "keep", 30, "number of newest snapshots to keep")
	cmd.AddCommand(prune)

	var olderThan time.Duration
	ops := &cobra.Command{
		Use:   "operations",
		Short: "Export journaled operations older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.deps.Archiver == nil {
				return errors.New("archive: s3 is not enabled")
			}
			if e.deps.OperationStore == nil {
				return errors.New("archive: postgres is not enabled")
			}
			before := time.Now().UTC().Add(-olderThan)
			n, err := e.deps.Archiver.ArchiveOperations(cmd.Context(), e.deps.OperationStore, before)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"archived": n,
				"before":   before.Format(time.RFC3339),
			})
		},
	}
	ops.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "archive operations created before now minus this")
	cmd.AddCommand(ops)

	return cmd
}

func newJournalCmd(e *env) *cobra.Command {
	var (
		limit int
		mine  bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show journaled operations or audit entries",
	}

	opsCmd := &cobra.Command{
		Use:   "operations",
		Short: "List recent operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.deps.OperationStore == nil {
				return errors.New("journal: postgres is not enabled")
			}
			ctx := cmd.Context()
			opts := domain.ListOpts{Limit: limit}
			var (
				recs []domain.OperationRecord
				err  error
			)
			if mine {
				if err := e.connect(ctx); err != nil {
					return err
				}
				recs, err = e.deps.OperationStore.ListByAccount(ctx, e.deps.Wallet.Session().Account, opts)
			} else {
				recs, err = e.deps.OperationStore.ListRecent(ctx, opts)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}
	opsCmd.Flags().BoolVar(&mine, "mine", false, "only operations of the connected account")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit log entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.deps.AuditStore == nil {
				return errors.New("journal: postgres is not enabled")
			}
			entries, err := e.deps.AuditStore.List(cmd.Context(), domain.ListOpts{Limit: limit})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}

	cmd.PersistentFlags().IntVar(&limit, "limit", 50, "maximum rows to show")
	cmd.AddCommand(opsCmd, auditCmd)
	return cmd
}
