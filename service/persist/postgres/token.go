package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mikeydub/go-indexer/service/persist"
)

const tokenColumns = `ID,CREATED_AT,LAST_UPDATED,NAME,ADDRESS,TOKEN_TYPE,FETCHING_STRATEGY,NETWORK_ID,TOTAL_SUPPLY,VOLUME`

// TokenRepository is a repository for tokens
type TokenRepository struct {
	db *sql.DB

	createStmt       *sql.Stmt
	getByIDStmt      *sql.Stmt
	getByAddressStmt *sql.Stmt
	getByNetworkStmt *sql.Stmt
	getByNameStmt    *sql.Stmt
	getAllStmt       *sql.Stmt
}

// NewTokenRepository creates a new postgres repository for interacting with tokens
func NewTokenRepository(db *sql.DB) *TokenRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	createStmt, err := db.PrepareContext(ctx, `INSERT INTO tokens (ID,NAME,ADDRESS,TOKEN_TYPE,FETCHING_STRATEGY,NETWORK_ID,TOTAL_SUPPLY,VOLUME) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING ID;`)
	checkNoErr(err)

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE ID = $1;`)
	checkNoErr(err)

	getByAddressStmt, err := db.PrepareContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE ADDRESS = $1 ORDER BY NAME;`)
	checkNoErr(err)

	getByNetworkStmt, err := db.PrepareContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE NETWORK_ID = $1 ORDER BY NAME;`)
	checkNoErr(err)

	getByNameStmt, err := db.PrepareContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE NAME = $1 ORDER BY CREATED_AT;`)
	checkNoErr(err)

	getAllStmt, err := db.PrepareContext(ctx, `SELECT `+tokenColumns+` FROM tokens ORDER BY NAME;`)
	checkNoErr(err)

	return &TokenRepository{
		db:               db,
		createStmt:       createStmt,
		getByIDStmt:      getByIDStmt,
		getByAddressStmt: getByAddressStmt,
		getByNetworkStmt: getByNetworkStmt,
		getByNameStmt:    getByNameStmt,
		getAllStmt:       getAllStmt,
	}
}

// Create inserts a new token
func (t *TokenRepository) Create(pCtx context.Context, pToken persist.Token) (persist.DBID, error) {
	var id persist.DBID
	err := t.createStmt.QueryRowContext(pCtx, persist.GenerateID(), pToken.Name, pToken.Address, pToken.Type, pToken.Strategy, pToken.NetworkID, pToken.TotalSupply, pToken.Volume).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByID returns a token by its ID
func (t *TokenRepository) GetByID(pCtx context.Context, pID persist.DBID) (persist.Token, error) {
	token := persist.Token{}
	err := t.getByIDStmt.QueryRowContext(pCtx, pID).Scan(&token.ID, &token.CreationTime, &token.LastUpdated, &token.Name, &token.Address, &token.Type, &token.Strategy, &token.NetworkID, &token.TotalSupply, &token.Volume)
	if err != nil {
		if err == sql.ErrNoRows {
			return token, persist.ErrTokenNotFoundByID{ID: pID}
		}
		return token, err
	}
	return token, nil
}

// GetByAddress returns every token deployed at a contract address, across networks
func (t *TokenRepository) GetByAddress(pCtx context.Context, pAddress persist.Address) ([]persist.Token, error) {
	return t.queryTokens(pCtx, t.getByAddressStmt, pAddress)
}

// GetByNetwork returns every token tracked on a network
func (t *TokenRepository) GetByNetwork(pCtx context.Context, pNetworkID persist.DBID) ([]persist.Token, error) {
	return t.queryTokens(pCtx, t.getByNetworkStmt, pNetworkID)
}

// GetByName returns every token with the given name
func (t *TokenRepository) GetByName(pCtx context.Context, pName string) ([]persist.Token, error) {
	return t.queryTokens(pCtx, t.getByNameStmt, pName)
}

// GetAll returns every token
func (t *TokenRepository) GetAll(pCtx context.Context) ([]persist.Token, error) {
	return t.queryTokens(pCtx, t.getAllStmt)
}

func (t *TokenRepository) queryTokens(pCtx context.Context, stmt *sql.Stmt, args ...interface{}) ([]persist.Token, error) {
	rows, err := stmt.QueryContext(pCtx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.Token, 0, 10)
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
