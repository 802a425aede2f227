package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"
	"github.com/mikeydub/go-indexer/service/persist"
)

const transferColumns = `ID,CREATED_AT,LAST_UPDATED,TOKEN_ID,TOKEN_INSTANCE_ID,AMOUNT,OPERATOR,SENDER,RECIPIENT,TX_HASH,FETCHED_BY`

const uniqueViolationCode = "23505"

// TransferRepository is a repository for token transfers
type TransferRepository struct {
	db   *sql.DB
	pool *pgxpool.Pool

	createStmt       *sql.Stmt
	existsStmt       *sql.Stmt
	getByTxHashStmt  *sql.Stmt
	participantsStmt *sql.Stmt
}

// NewTransferRepository creates a new postgres repository for interacting with transfers
func NewTransferRepository(db *sql.DB, pool *pgxpool.Pool) *TransferRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	createStmt, err := db.PrepareContext(ctx, `INSERT INTO token_transfers (ID,TOKEN_ID,TOKEN_INSTANCE_ID,AMOUNT,OPERATOR,SENDER,RECIPIENT,TX_HASH,FETCHED_BY) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING ID;`)
	checkNoErr(err)

	existsStmt, err := db.PrepareContext(ctx, `SELECT EXISTS(SELECT 1 FROM token_transfers WHERE TX_HASH = $1);`)
	checkNoErr(err)

	getByTxHashStmt, err := db.PrepareContext(ctx, `SELECT `+transferColumns+` FROM token_transfers WHERE TX_HASH = $1;`)
	checkNoErr(err)

	participantsStmt, err := db.PrepareContext(ctx, `SELECT SENDER AS participant FROM token_transfers WHERE TOKEN_ID = $1 AND SENDER IS NOT NULL UNION SELECT RECIPIENT FROM token_transfers WHERE TOKEN_ID = $1 AND RECIPIENT IS NOT NULL;`)
	checkNoErr(err)

	return &TransferRepository{
		db:               db,
		pool:             pool,
		createStmt:       createStmt,
		existsStmt:       existsStmt,
		getByTxHashStmt:  getByTxHashStmt,
		participantsStmt: participantsStmt,
	}
}

// Create inserts a new transfer. An insert that loses the race on the tx_hash
// unique constraint returns persist.ErrTransferAlreadyExists.
func (t *TransferRepository) Create(pCtx context.Context, pTransfer persist.TokenTransfer) (persist.DBID, error) {
	var id persist.DBID
	err := t.createStmt.QueryRowContext(pCtx, persist.GenerateID(), pTransfer.TokenDBID, pTransfer.TokenID, pTransfer.Amount, pTransfer.Operator, pTransfer.Sender, pTransfer.Recipient, pTransfer.TxHash, pTransfer.FetchedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return "", persist.ErrTransferAlreadyExists{TxHash: pTransfer.TxHash}
		}
		return "", err
	}
	return id, nil
}

// ExistsByTxHash reports whether a transfer with the given tx hash is already persisted
func (t *TransferRepository) ExistsByTxHash(pCtx context.Context, pTxHash persist.TxHash) (bool, error) {
	var exists bool
	err := t.existsStmt.QueryRowContext(pCtx, pTxHash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetByTxHash returns the transfer persisted for a transaction
func (t *TransferRepository) GetByTxHash(pCtx context.Context, pTxHash persist.TxHash) (persist.TokenTransfer, error) {
	transfer := persist.TokenTransfer{}
	err := t.getByTxHashStmt.QueryRowContext(pCtx, pTxHash).Scan(&transfer.ID, &transfer.CreationTime, &transfer.LastUpdated, &transfer.TokenDBID, &transfer.TokenID, &transfer.Amount, &transfer.Operator, &transfer.Sender, &transfer.Recipient, &transfer.TxHash, &transfer.FetchedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return transfer, persist.ErrTransferNotFoundByTxHash{TxHash: pTxHash}
		}
		return transfer, err
	}
	return transfer, nil
}

// List returns transfers matching the query, newest first
func (t *TransferRepository) List(pCtx context.Context, pQuery persist.TransferListQuery) ([]persist.TokenTransfer, error) {
	sqlStr := `SELECT ` + transferColumns + ` FROM token_transfers WHERE 1 = 1`
	args := []interface{}{}

	if pQuery.Sender != "" {
		args = append(args, pQuery.Sender)
		sqlStr += fmt.Sprintf(` AND SENDER = $%d`, len(args))
	}
	if pQuery.Recipient != "" {
		args = append(args, pQuery.Recipient)
		sqlStr += fmt.Sprintf(` AND RECIPIENT = $%d`, len(args))
	}
	if len(pQuery.TokenDBIDs) > 0 {
		ids := make([]string, len(pQuery.TokenDBIDs))
		for i, id := range pQuery.TokenDBIDs {
			ids[i] = string(id)
		}
		args = append(args, pq.Array(ids))
		sqlStr += fmt.Sprintf(` AND TOKEN_ID = ANY($%d)`, len(args))
	}

	sqlStr += ` ORDER BY CREATED_AT DESC`

	if pQuery.Limit > 0 {
		args = append(args, pQuery.Limit)
		sqlStr += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := t.db.QueryContext(pCtx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.TokenTransfer, 0, 25)
	for rows.Next() {
		var transfer persist.TokenTransfer
		err := rows.Scan(&transfer.ID, &transfer.CreationTime, &transfer.LastUpdated, &transfer.TokenDBID, &transfer.TokenID, &transfer.Amount, &transfer.Operator, &transfer.Sender, &transfer.Recipient, &transfer.TxHash, &transfer.FetchedBy)
		if err != nil {
			return nil, err
		}
		res = append(res, transfer)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// DistinctParticipants returns the union of senders and recipients across a token's transfers
func (t *TransferRepository) DistinctParticipants(pCtx context.Context, pTokenDBID persist.DBID) ([]persist.Address, error) {
	rows, err := t.participantsStmt.QueryContext(pCtx, pTokenDBID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.Address, 0, 25)
	for rows.Next() {
		var addr persist.Address
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		if addr == "" || addr == persist.ZeroAddress {
			continue
		}
		res = append(res, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// Count returns the total number of persisted transfers
func (t *TransferRepository) Count(pCtx context.Context) (int64, error) {
	var count int64
	err := t.pool.QueryRow(pCtx, `SELECT count(*) FROM token_transfers;`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByIndexer returns how many transfers each indexer has fetched, keyed by indexer name
func (t *TransferRepository) CountByIndexer(pCtx context.Context) (map[string]int64, error) {
	rows, err := t.pool.Query(pCtx, `SELECT i.NAME, count(*) FROM token_transfers tt JOIN indexers i ON tt.FETCHED_BY = i.ID GROUP BY i.NAME;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := map[string]int64{}
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		res[name] = count
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}
