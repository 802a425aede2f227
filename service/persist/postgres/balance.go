package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"
	"github.com/mikeydub/go-indexer/service/persist"
)

const balanceColumns = `ID,CREATED_AT,LAST_UPDATED,TOKEN_ID,HOLDER,TOKEN_INSTANCE_ID,AMOUNT,TRACKED_BY`

// BalanceRepository is a repository for token balances
type BalanceRepository struct {
	db   *sql.DB
	pool *pgxpool.Pool

	getAmountRowStmt      *sql.Stmt
	createAmountRowStmt   *sql.Stmt
	saveStmt              *sql.Stmt
	listOwnedIDsStmt      *sql.Stmt
	deleteTokenIDRowsStmt *sql.Stmt
	listByHolderStmt      *sql.Stmt
}

// NewBalanceRepository creates a new postgres repository for interacting with balances
func NewBalanceRepository(db *sql.DB, pool *pgxpool.Pool) *BalanceRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	getAmountRowStmt, err := db.PrepareContext(ctx, `SELECT `+balanceColumns+` FROM token_balances WHERE TOKEN_ID = $1 AND HOLDER = $2 AND TOKEN_INSTANCE_ID IS NULL;`)
	checkNoErr(err)

	createAmountRowStmt, err := db.PrepareContext(ctx, `INSERT INTO token_balances (ID,TOKEN_ID,HOLDER,AMOUNT,TRACKED_BY) VALUES ($1,$2,$3,$4,$5) RETURNING `+balanceColumns+`;`)
	checkNoErr(err)

	saveStmt, err := db.PrepareContext(ctx, `UPDATE token_balances SET AMOUNT = $2, TRACKED_BY = $3, LAST_UPDATED = now() WHERE ID = $1;`)
	checkNoErr(err)

	listOwnedIDsStmt, err := db.PrepareContext(ctx, `SELECT TOKEN_INSTANCE_ID FROM token_balances WHERE TOKEN_ID = $1 AND HOLDER = $2 AND TOKEN_INSTANCE_ID IS NOT NULL ORDER BY TOKEN_INSTANCE_ID;`)
	checkNoErr(err)

	deleteTokenIDRowsStmt, err := db.PrepareContext(ctx, `DELETE FROM token_balances WHERE TOKEN_ID = $1 AND HOLDER = $2 AND TOKEN_INSTANCE_ID = ANY($3::numeric[]);`)
	checkNoErr(err)

	listByHolderStmt, err := db.PrepareContext(ctx, `SELECT `+balanceColumns+` FROM token_balances WHERE HOLDER = $1 ORDER BY LAST_UPDATED DESC;`)
	checkNoErr(err)

	return &BalanceRepository{
		db:                    db,
		pool:                  pool,
		getAmountRowStmt:      getAmountRowStmt,
		createAmountRowStmt:   createAmountRowStmt,
		saveStmt:              saveStmt,
		listOwnedIDsStmt:      listOwnedIDsStmt,
		deleteTokenIDRowsStmt: deleteTokenIDRowsStmt,
		listByHolderStmt:      listByHolderStmt,
	}
}

// GetOrCreate returns the single amount row for a (token, holder) pair,
// creating an empty one owned by the given indexer when none exists
func (b *BalanceRepository) GetOrCreate(pCtx context.Context, pTokenDBID persist.DBID, pHolder persist.Address, pTrackedBy persist.DBID) (persist.TokenBalance, error) {
	balance := persist.TokenBalance{}
	err := b.scanBalance(b.getAmountRowStmt.QueryRowContext(pCtx, pTokenDBID, pHolder), &balance)
	if err == nil {
		return balance, nil
	}
	if err != sql.ErrNoRows {
		return balance, err
	}

	err = b.scanBalance(b.createAmountRowStmt.QueryRowContext(pCtx, persist.GenerateID(), pTokenDBID, pHolder, persist.Uint256(""), pTrackedBy), &balance)
	if err != nil {
		return balance, err
	}
	return balance, nil
}

// Save writes a balance row's amount in place
func (b *BalanceRepository) Save(pCtx context.Context, pBalance persist.TokenBalance) error {
	_, err := b.saveStmt.ExecContext(pCtx, pBalance.ID, pBalance.Amount, pBalance.TrackedBy)
	return err
}

// ListOwnedTokenIDs returns the token IDs a holder is recorded as owning
func (b *BalanceRepository) ListOwnedTokenIDs(pCtx context.Context, pTokenDBID persist.DBID, pHolder persist.Address) ([]persist.Uint256, error) {
	rows, err := b.listOwnedIDsStmt.QueryContext(pCtx, pTokenDBID, pHolder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.Uint256, 0, 10)
	for rows.Next() {
		var id persist.Uint256
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// CreateTokenIDRows inserts one row per newly observed owned token ID
func (b *BalanceRepository) CreateTokenIDRows(pCtx context.Context, pTokenDBID persist.DBID, pHolder persist.Address, pTokenIDs []persist.Uint256, pTrackedBy persist.DBID) error {
	if len(pTokenIDs) == 0 {
		return nil
	}

	sqlStr := `INSERT INTO token_balances (ID,TOKEN_ID,HOLDER,TOKEN_INSTANCE_ID,TRACKED_BY) VALUES `
	args := make([]interface{}, 0, len(pTokenIDs)*5)
	for i, id := range pTokenIDs {
		if i > 0 {
			sqlStr += ","
		}
		sqlStr += generateValuesPlaceholders(5, i*5)
		args = append(args, persist.GenerateID(), pTokenDBID, pHolder, id, pTrackedBy)
	}
	sqlStr += ";"

	_, err := b.db.ExecContext(pCtx, sqlStr, args...)
	return err
}

// DeleteTokenIDRows removes rows for token IDs the holder no longer owns
func (b *BalanceRepository) DeleteTokenIDRows(pCtx context.Context, pTokenDBID persist.DBID, pHolder persist.Address, pTokenIDs []persist.Uint256) error {
	if len(pTokenIDs) == 0 {
		return nil
	}

	ids := make([]string, len(pTokenIDs))
	for i, id := range pTokenIDs {
		ids[i] = id.String()
	}

	_, err := b.deleteTokenIDRowsStmt.ExecContext(pCtx, pTokenDBID, pHolder, pq.Array(ids))
	return err
}

// ListByHolder returns every balance row for a holder across tokens
func (b *BalanceRepository) ListByHolder(pCtx context.Context, pHolder persist.Address) ([]persist.TokenBalance, error) {
	rows, err := b.listByHolderStmt.QueryContext(pCtx, pHolder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.TokenBalance, 0, 10)
	for rows.Next() {
		var balance persist.TokenBalance
		err := rows.Scan(&balance.ID, &balance.CreationTime, &balance.LastUpdated, &balance.TokenDBID, &balance.Holder, &balance.TokenID, &balance.Amount, &balance.TrackedBy)
		if err != nil {
			return nil, err
		}
		res = append(res, balance)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// CountTrackedByIndexer returns how many balance rows each indexer tracks, keyed by indexer name
func (b *BalanceRepository) CountTrackedByIndexer(pCtx context.Context) (map[string]int64, error) {
	rows, err := b.pool.Query(pCtx, `SELECT i.NAME, count(*) FROM token_balances tb JOIN indexers i ON tb.TRACKED_BY = i.ID GROUP BY i.NAME;`)
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

func (b *BalanceRepository) scanBalance(row *sql.Row, balance *persist.TokenBalance) error {
	return row.Scan(&balance.ID, &balance.CreationTime, &balance.LastUpdated, &balance.TokenDBID, &balance.Holder, &balance.TokenID, &balance.Amount, &balance.TrackedBy)
}
