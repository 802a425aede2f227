package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mikeydub/go-indexer/service/persist"
)

const indexerColumns = `ID,CREATED_AT,LAST_UPDATED,NAME,NETWORK_ID,INDEXER_TYPE,STRATEGY,STRATEGY_PARAMS,LAST_BLOCK,SHORT_SLEEP_SECONDS,LONG_SLEEP_SECONDS,STATUS`

// IndexerRepository is a repository for indexer definitions and their progress
type IndexerRepository struct {
	db *sql.DB

	createStmt           *sql.Stmt
	getByIDStmt          *sql.Stmt
	getByNameStmt        *sql.Stmt
	getAllStmt           *sql.Stmt
	getByStatusStmt      *sql.Stmt
	getWatchedTokensStmt *sql.Stmt
	addWatchedTokenStmt  *sql.Stmt
	updateLastBlockStmt  *sql.Stmt
	updateStatusStmt     *sql.Stmt
	countByStatusStmt    *sql.Stmt
}

// NewIndexerRepository creates a new postgres repository for interacting with indexers
func NewIndexerRepository(db *sql.DB) *IndexerRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	createStmt, err := db.PrepareContext(ctx, `INSERT INTO indexers (ID,NAME,NETWORK_ID,INDEXER_TYPE,STRATEGY,STRATEGY_PARAMS,LAST_BLOCK,SHORT_SLEEP_SECONDS,LONG_SLEEP_SECONDS,STATUS) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING ID;`)
	checkNoErr(err)

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT `+indexerColumns+` FROM indexers WHERE ID = $1;`)
	checkNoErr(err)

	getByNameStmt, err := db.PrepareContext(ctx, `SELECT `+indexerColumns+` FROM indexers WHERE NAME = $1;`)
	checkNoErr(err)

	getAllStmt, err := db.PrepareContext(ctx, `SELECT `+indexerColumns+` FROM indexers ORDER BY NAME;`)
	checkNoErr(err)

	getByStatusStmt, err := db.PrepareContext(ctx, `SELECT `+indexerColumns+` FROM indexers WHERE STATUS = $1 ORDER BY NAME;`)
	checkNoErr(err)

	getWatchedTokensStmt, err := db.PrepareContext(ctx, `SELECT t.ID,t.CREATED_AT,t.LAST_UPDATED,t.NAME,t.ADDRESS,t.TOKEN_TYPE,t.FETCHING_STRATEGY,t.NETWORK_ID,t.TOTAL_SUPPLY,t.VOLUME FROM tokens t JOIN indexer_watched_tokens w ON w.TOKEN_ID = t.ID WHERE w.INDEXER_ID = $1 ORDER BY w.CREATED_AT;`)
	checkNoErr(err)

	addWatchedTokenStmt, err := db.PrepareContext(ctx, `INSERT INTO indexer_watched_tokens (ID,INDEXER_ID,TOKEN_ID) VALUES ($1,$2,$3) ON CONFLICT (INDEXER_ID,TOKEN_ID) DO NOTHING;`)
	checkNoErr(err)

	updateLastBlockStmt, err := db.PrepareContext(ctx, `UPDATE indexers SET LAST_BLOCK = $2, LAST_UPDATED = now() WHERE ID = $1;`)
	checkNoErr(err)

	updateStatusStmt, err := db.PrepareContext(ctx, `UPDATE indexers SET STATUS = $2, LAST_UPDATED = now() WHERE ID = $1;`)
	checkNoErr(err)

	countByStatusStmt, err := db.PrepareContext(ctx, `SELECT count(*) FROM indexers WHERE STATUS = $1;`)
	checkNoErr(err)

	return &IndexerRepository{
		db:                   db,
		createStmt:           createStmt,
		getByIDStmt:          getByIDStmt,
		getByNameStmt:        getByNameStmt,
		getAllStmt:           getAllStmt,
		getByStatusStmt:      getByStatusStmt,
		getWatchedTokensStmt: getWatchedTokensStmt,
		addWatchedTokenStmt:  addWatchedTokenStmt,
		updateLastBlockStmt:  updateLastBlockStmt,
		updateStatusStmt:     updateStatusStmt,
		countByStatusStmt:    countByStatusStmt,
	}
}

// Create inserts a new indexer, applying sleep and watermark defaults
func (i *IndexerRepository) Create(pCtx context.Context, pIndexer persist.Indexer) (persist.DBID, error) {
	shortSleep := pIndexer.ShortSleepSeconds
	if shortSleep == 0 {
		shortSleep = persist.DefaultShortSleepSeconds
	}
	longSleep := pIndexer.LongSleepSeconds
	if longSleep == 0 {
		longSleep = persist.DefaultLongSleepSeconds
	}
	status := pIndexer.Status
	if status == "" {
		status = persist.IndexerStatusOff
	}

	var id persist.DBID
	err := i.createStmt.QueryRowContext(pCtx, persist.GenerateID(), pIndexer.Name, pIndexer.NetworkID, pIndexer.Type, pIndexer.Strategy, pIndexer.Params, pIndexer.LastBlock, shortSleep, longSleep, status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByID returns an indexer by its ID
func (i *IndexerRepository) GetByID(pCtx context.Context, pID persist.DBID) (persist.Indexer, error) {
	indexer := persist.Indexer{}
	err := i.scanIndexer(i.getByIDStmt.QueryRowContext(pCtx, pID), &indexer)
	if err != nil {
		if err == sql.ErrNoRows {
			return indexer, persist.ErrIndexerNotFoundByID{ID: pID}
		}
		return indexer, err
	}
	return indexer, nil
}

// GetByName returns an indexer by its unique name
func (i *IndexerRepository) GetByName(pCtx context.Context, pName string) (persist.Indexer, error) {
	indexer := persist.Indexer{}
	err := i.scanIndexer(i.getByNameStmt.QueryRowContext(pCtx, pName), &indexer)
	if err != nil {
		if err == sql.ErrNoRows {
			return indexer, persist.ErrIndexerNotFoundByName{Name: pName}
		}
		return indexer, err
	}
	return indexer, nil
}

// GetAll returns every indexer
func (i *IndexerRepository) GetAll(pCtx context.Context) ([]persist.Indexer, error) {
	return i.queryIndexers(pCtx, i.getAllStmt)
}

// GetByStatus returns every indexer with the given status
func (i *IndexerRepository) GetByStatus(pCtx context.Context, pStatus persist.IndexerStatus) ([]persist.Indexer, error) {
	return i.queryIndexers(pCtx, i.getByStatusStmt, pStatus)
}

// GetWatchedTokens returns the tokens an indexer watches, in the order they were added
func (i *IndexerRepository) GetWatchedTokens(pCtx context.Context, pIndexerID persist.DBID) ([]persist.Token, error) {
	rows, err := i.getWatchedTokensStmt.QueryContext(pCtx, pIndexerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.Token, 0, 5)
	for rows.Next() {
		var token persist.Token
		err := rows.Scan(&token.ID, &token.CreationTime, &token.LastUpdated, &token.Name, &token.Address, &token.Type, &token.Strategy, &token.NetworkID, &token.TotalSupply, &token.Volume)
		if err != nil {
			return nil, err
		}
		res = append(res, token)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// AddWatchedToken adds a token to an indexer's watched set
func (i *IndexerRepository) AddWatchedToken(pCtx context.Context, pIndexerID persist.DBID, pTokenID persist.DBID) error {
	_, err := i.addWatchedTokenStmt.ExecContext(pCtx, persist.GenerateID(), pIndexerID, pTokenID)
	return err
}

// UpdateLastBlock advances an indexer's watermark
func (i *IndexerRepository) UpdateLastBlock(pCtx context.Context, pID persist.DBID, pLastBlock persist.BlockNumber) error {
	_, err := i.updateLastBlockStmt.ExecContext(pCtx, pID, pLastBlock)
	return err
}

// UpdateStatus sets an indexer's status
func (i *IndexerRepository) UpdateStatus(pCtx context.Context, pID persist.DBID, pStatus persist.IndexerStatus) error {
	_, err := i.updateStatusStmt.ExecContext(pCtx, pID, pStatus)
	return err
}

// CountByStatus returns how many indexers have the given status
func (i *IndexerRepository) CountByStatus(pCtx context.Context, pStatus persist.IndexerStatus) (int64, error) {
	var count int64
	err := i.countByStatusStmt.QueryRowContext(pCtx, pStatus).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (i *IndexerRepository) queryIndexers(pCtx context.Context, stmt *sql.Stmt, args ...interface{}) ([]persist.Indexer, error) {
	rows, err := stmt.QueryContext(pCtx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.Indexer, 0, 5)
	for rows.Next() {
		var indexer persist.Indexer
		err := rows.Scan(&indexer.ID, &indexer.CreationTime, &indexer.LastUpdated, &indexer.Name, &indexer.NetworkID, &indexer.Type, &indexer.Strategy, &indexer.Params, &indexer.LastBlock, &indexer.ShortSleepSeconds, &indexer.LongSleepSeconds, &indexer.Status)
		if err != nil {
			return nil, err
		}
		res = append(res, indexer)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

func (i *IndexerRepository) scanIndexer(row *sql.Row, indexer *persist.Indexer) error {
	return row.Scan(&indexer.ID, &indexer.CreationTime, &indexer.LastUpdated, &indexer.Name, &indexer.NetworkID, &indexer.Type, &indexer.Strategy, &indexer.Params, &indexer.LastBlock, &indexer.ShortSleepSeconds, &indexer.LongSleepSeconds, &indexer.Status)
}
