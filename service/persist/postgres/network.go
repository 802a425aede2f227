package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mikeydub/go-indexer/service/persist"
)

// NetworkRepository is a repository for networks
type NetworkRepository struct {
	db *sql.DB

	createStmt       *sql.Stmt
	getByIDStmt      *sql.Stmt
	getByChainIDStmt *sql.Stmt
	getAllStmt       *sql.Stmt
}

// NewNetworkRepository creates a new postgres repository for interacting with networks
func NewNetworkRepository(db *sql.DB) *NetworkRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	createStmt, err := db.PrepareContext(ctx, `INSERT INTO networks (ID,NAME,CHAIN_ID,RPC_URL,MAX_STEP,NETWORK_TYPE,NEED_POA,EXPLORER_URL) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING ID;`)
	checkNoErr(err)

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT ID,CREATED_AT,LAST_UPDATED,NAME,CHAIN_ID,RPC_URL,MAX_STEP,NETWORK_TYPE,NEED_POA,EXPLORER_URL FROM networks WHERE ID = $1;`)
	checkNoErr(err)

	getByChainIDStmt, err := db.PrepareContext(ctx, `SELECT ID,CREATED_AT,LAST_UPDATED,NAME,CHAIN_ID,RPC_URL,MAX_STEP,NETWORK_TYPE,NEED_POA,EXPLORER_URL FROM networks WHERE CHAIN_ID = $1;`)
	checkNoErr(err)

	getAllStmt, err := db.PrepareContext(ctx, `SELECT ID,CREATED_AT,LAST_UPDATED,NAME,CHAIN_ID,RPC_URL,MAX_STEP,NETWORK_TYPE,NEED_POA,EXPLORER_URL FROM networks ORDER BY NAME;`)
	checkNoErr(err)

	return &NetworkRepository{
		db:               db,
		createStmt:       createStmt,
		getByIDStmt:      getByIDStmt,
		getByChainIDStmt: getByChainIDStmt,
		getAllStmt:       getAllStmt,
	}
}

// Create inserts a new network
func (n *NetworkRepository) Create(pCtx context.Context, pNetwork persist.Network) (persist.DBID, error) {
	maxStep := pNetwork.MaxStep
	if maxStep == 0 {
		maxStep = persist.DefaultMaxStep
	}

	var id persist.DBID
	err := n.createStmt.QueryRowContext(pCtx, persist.GenerateID(), pNetwork.Name, pNetwork.ChainID, pNetwork.RPCURL, maxStep, pNetwork.Type, pNetwork.NeedPOA, pNetwork.ExplorerURL).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByID returns a network by its ID
func (n *NetworkRepository) GetByID(pCtx context.Context, pID persist.DBID) (persist.Network, error) {
	network := persist.Network{}
	err := n.getByIDStmt.QueryRowContext(pCtx, pID).Scan(&network.ID, &network.CreationTime, &network.LastUpdated, &network.Name, &network.ChainID, &network.RPCURL, &network.MaxStep, &network.Type, &network.NeedPOA, &network.ExplorerURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return network, persist.ErrNetworkNotFoundByID{ID: pID}
		}
		return network, err
	}
	return network, nil
}

// GetByChainID returns a network by its chain ID
func (n *NetworkRepository) GetByChainID(pCtx context.Context, pChainID persist.ChainID) (persist.Network, error) {
	network := persist.Network{}
	err := n.getByChainIDStmt.QueryRowContext(pCtx, pChainID).Scan(&network.ID, &network.CreationTime, &network.LastUpdated, &network.Name, &network.ChainID, &network.RPCURL, &network.MaxStep, &network.Type, &network.NeedPOA, &network.ExplorerURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return network, persist.ErrNetworkNotFoundByChainID{ChainID: pChainID}
		}
		return network, err
	}
	return network, nil
}

// GetAll returns every network
func (n *NetworkRepository) GetAll(pCtx context.Context) ([]persist.Network, error) {
	rows, err := n.getAllStmt.QueryContext(pCtx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]persist.Network, 0, 5)
	for rows.Next() {
		var network persist.Network
		err := rows.Scan(&network.ID, &network.CreationTime, &network.LastUpdated, &network.Name, &network.ChainID, &network.RPCURL, &network.MaxStep, &network.Type, &network.NeedPOA, &network.ExplorerURL)
		if err != nil {
			return nil, err
		}
		res = append(res, network)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}
