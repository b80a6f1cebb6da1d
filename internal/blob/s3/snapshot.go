package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

// Snapshot is a point-in-time copy of the marketplace's public state.
type Snapshot struct {
	TakenAt  time.Time            `json:"takenAt"`
	ChainID  uint64               `json:"chainId"`
	Contract string               `json:"contract"`
	Items    []domain.ItemView    `json:"items"`
	Auctions []domain.AuctionView `json:"auctions"`
}

// Archiver writes marketplace snapshots and journal exports to object
// storage. Every upload is recorded in the audit log when one is set.
//
// Archived journal rows are not deleted from the primary store here; that is
// a separate step once the archive has been verified.
type Archiver struct {
	writer    domain.BlobWriter
	audit     domain.AuditStore
	chainID   uint64
	contract  string
	increment *big.Int

	reader domain.BlobReader
	retain int
}

// NewArchiver creates an Archiver for one chain and contract. audit may be
// nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, chainID uint64, contract string, increment *big.Int) *Archiver {
	return &Archiver{
		writer:    writer,
		audit:     audit,
		chainID:   chainID,
		contract:  contract,
		increment: increment,
	}
}

// SetReader lets the archiver read back and prune its own snapshots.
func (a *Archiver) SetReader(r domain.BlobReader) { a.reader = r }

// SetRetention keeps only the newest n snapshots after each upload. Zero
// keeps all. Pruning needs a reader.
func (a *Archiver) SetRetention(n int) { a.retain = n }

// SnapshotPrefix is the key prefix under which this archiver's snapshots
// live.
func (a *Archiver) SnapshotPrefix() string {
	return fmt.Sprintf("snapshots/%d/", a.chainID)
}

// ArchiveSnapshot uploads the listings and auctions observed at now as one
// JSON document and returns its key.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, items []domain.MarketItem, auctions []domain.Auction, now time.Time) (string, error) {
	snap := Snapshot{
		TakenAt:  now.UTC(),
		ChainID:  a.chainID,
		Contract: a.contract,
		Items:    make([]domain.ItemView, 0, len(items)),
		Auctions: make([]domain.AuctionView, 0, len(auctions)),
	}
	for _, it := range items {
		snap.Items = append(snap.Items, domain.NewItemView(it))
	}
	for _, au := range auctions {
		snap.Auctions = append(snap.Auctions, domain.NewAuctionView(au, now, a.increment, ""))
	}

	buf, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}

	key := snapshotPath(a.chainID, now)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload snapshot: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.snapshot", map[string]any{
			"path":     key,
			"items":    len(items),
			"auctions": len(auctions),
		}); err != nil {
			return key, fmt.Errorf("s3blob: snapshot audit log: %w", err)
		}
	}

	if a.retain > 0 && a.reader != nil {
		if _, err := a.PruneSnapshots(ctx, a.retain); err != nil {
			return key, err
		}
	}
	return key, nil
}

// LatestSnapshot reads back the newest snapshot and its key. It returns
// domain.ErrNotFound when none has been written.
func (a *Archiver) LatestSnapshot(ctx context.Context) (string, Snapshot, error) {
	if a.reader == nil {
		return "", Snapshot{}, errors.New("s3blob: latest snapshot: no reader set")
	}
	infos, err := a.reader.List(ctx, a.SnapshotPrefix())
	if err != nil {
		return "", Snapshot{}, err
	}
	if len(infos) == 0 {
		return "", Snapshot{}, fmt.Errorf("s3blob: latest snapshot: %w", domain.ErrNotFound)
	}
	// Keys sort by their embedded UTC timestamp.
	key := infos[len(infos)-1].Path

	body, err := a.reader.Get(ctx, key)
	if err != nil {
		return "", Snapshot{}, err
	}
	defer body.Close()

	var snap Snapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return "", Snapshot{}, fmt.Errorf("s3blob: decode snapshot %s: %w", key, err)
	}
	return key, snap, nil
}

// PruneSnapshots deletes all but the newest keep snapshots and returns how
// many were removed.
func (a *Archiver) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if a.reader == nil {
		return 0, errors.New("s3blob: prune snapshots: no reader set")
	}
	if keep < 1 {
		return 0, fmt.Errorf("s3blob: prune snapshots: keep must be >= 1, got %d", keep)
	}
	infos, err := a.reader.List(ctx, a.SnapshotPrefix())
	if err != nil {
		return 0, err
	}
	if len(infos) <= keep {
		return 0, nil
	}

	stale := infos[:len(infos)-keep]
	for i, info := range stale {
		if err := a.reader.Delete(ctx, info.Path); err != nil {
			return i, err
		}
	}
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.prune", map[string]any{
			"removed": len(stale),
			"kept":    keep,
		}); err != nil {
			return len(stale), fmt.Errorf("s3blob: prune audit log: %w", err)
		}
	}
	return len(stale), nil
}

// ArchiveOperations exports every journal row created before the cutoff as
// JSONL to archive/operations/YYYY-MM.jsonl and returns the row count.
func (a *Archiver) ArchiveOperations(ctx context.Context, store domain.OperationStore, before time.Time) (int64, error) {
	recs, err := store.ListRecent(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive operations query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive operations marshal: %w", err)
	}

	key := archivePath("operations", before)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive operations upload: %w", err)
	}

	count := int64(len(recs))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.operations", map[string]any{
			"path":   key,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive operations audit log: %w", err)
		}
	}
	return count, nil
}

// snapshotPath partitions snapshots by chain and day:
//
//	snapshots/31337/2025-01-02/20250102T150405Z.json
func snapshotPath(chainID uint64, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("snapshots/%d/%s/%s.json", chainID, at.Format("2006-01-02"), at.Format("20060102T150405Z"))
}

// archivePath builds the key for an export partitioned by the year-month of
// the cutoff:
//
//	archive/operations/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
