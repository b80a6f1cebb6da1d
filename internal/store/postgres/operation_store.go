package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

// OperationStore implements domain.OperationStore, the journal of
// marketplace writes.
type OperationStore struct {
	db DB
}

// NewOperationStore creates a new OperationStore backed by db.
func NewOperationStore(db DB) *OperationStore {
	return &OperationStore{db: db}
}

const operationSelectCols = `id, kind, entity, account, chain_id, status,
	tx_hash, error_kind, error, detail, created_at, updated_at`

// Create inserts a new journal row. Accounts are stored in their lowercase
// key form so lookups are case-insensitive.
func (s *OperationStore) Create(ctx context.Context, rec domain.OperationRecord) error {
	detailJSON, err := marshalDetail(rec.Detail)
	if err != nil {
		return fmt.Errorf("postgres: create operation %s: %w", rec.ID, err)
	}
	account := rec.Account
	if key, err := normalize.AccountKey(account); err == nil {
		account = key
	}
	status := rec.Status
	if status == "" {
		status = domain.OperationSubmitted
	}

	const query = `
		INSERT INTO operations (
			id, kind, entity, account, chain_id, status,
			tx_hash, error_kind, error, detail, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $11
		)`

	_, err = s.db.Exec(ctx, query,
		rec.ID, string(rec.Kind), rec.Entity, account, int64(rec.ChainID), string(status),
		rec.TxHash, rec.ErrorKind, rec.Error, detailJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create operation %s: %w", rec.ID, err)
	}
	return nil
}

// Finish records the outcome of a journaled write.
func (s *OperationStore) Finish(ctx context.Context, id string, status domain.OperationStatus, txHash, errKind, errMsg string) error {
	const query = `
		UPDATE operations
		SET status = $1, tx_hash = $2, error_kind = $3, error = $4, updated_at = NOW()
		WHERE id = $5`

	tag, err := s.db.Exec(ctx, query, string(status), txHash, errKind, errMsg, id)
	if err != nil {
		return fmt.Errorf("postgres: finish operation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish operation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns one journal row or domain.ErrNotFound.
func (s *OperationStore) GetByID(ctx context.Context, id string) (domain.OperationRecord, error) {
	query := `SELECT ` + operationSelectCols + ` FROM operations WHERE id = $1`
	rec, err := scanOperation(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OperationRecord{}, domain.ErrNotFound
		}
		return domain.OperationRecord{}, fmt.Errorf("postgres: get operation %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns journal rows, newest first.
func (s *OperationStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.OperationRecord, error) {
	query, args := appendListOpts(`SELECT `+operationSelectCols+` FROM operations WHERE 1=1`, nil, opts)
	return s.list(ctx, "list recent operations", query, args)
}

// ListByAccount returns the journal rows submitted by account, newest first.
func (s *OperationStore) ListByAccount(ctx context.Context, account string, opts domain.ListOpts) ([]domain.OperationRecord, error) {
	key, err := normalize.AccountKey(account)
	if err != nil {
		return nil, fmt.Errorf("postgres: list operations by account: %w", err)
	}
	query, args := appendListOpts(
		`SELECT `+operationSelectCols+` FROM operations WHERE account = $1`,
		[]any{key}, opts,
	)
	return s.list(ctx, "list operations by account", query, args)
}

func (s *OperationStore) list(ctx context.Context, what, query string, args []any) ([]domain.OperationRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", what, err)
	}
	defer rows.Close()

	var out []domain.OperationRecord
	for rows.Next() {
		rec, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", what, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return out, nil
}

func scanOperation(scanner interface{ Scan(dest ...any) error }) (domain.OperationRecord, error) {
	var (
		rec        domain.OperationRecord
		kind       string
		status     string
		chainID    int64
		detailJSON []byte
	)
	err := scanner.Scan(
		&rec.ID, &kind, &rec.Entity, &rec.Account, &chainID, &status,
		&rec.TxHash, &rec.ErrorKind, &rec.Error, &detailJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.OperationRecord{}, err
	}
	rec.Kind = domain.OpKind(kind)
	rec.Status = domain.OperationStatus(status)
	rec.ChainID = uint64(chainID)
	if len(detailJSON) > 0 {
		if err := json.Unmarshal(detailJSON, &rec.Detail); err != nil {
			return domain.OperationRecord{}, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	return rec, nil
}

func marshalDetail(detail map[string]any) ([]byte, error) {
	if len(detail) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}
	return data, nil
}

// Compile-time interface check.
var _ domain.OperationStore = (*OperationStore)(nil)
