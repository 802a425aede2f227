package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikeydub/go-indexer/launcher"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

const testAdminPass = "TEST_ADMIN_PASS"

type fixtures struct {
	network  persist.Network
	token    persist.Token
	indexer  persist.Indexer
	transfer persist.TokenTransfer
}

func testFixtures() fixtures {
	network := persist.Network{
		ID:      "network-1",
		Name:    "mainnet",
		ChainID: 1,
		RPCURL:  "https://rpc.example.com",
		MaxStep: 1000,
		Type:    persist.NetworkTypeFilterable,
	}
	token := persist.Token{
		ID:        "token-1",
		Name:      "cool token",
		Address:   "0x0c2ee19b2a89943066c2dc7f1bddcc907f614033",
		Type:      persist.TokenTypeERC721,
		Strategy:  persist.FetchingStrategyEvent,
		NetworkID: network.ID,
	}
	indexer := persist.Indexer{
		ID:       "indexer-1",
		Name:     "mainnet-transfers",
		Type:     persist.IndexerTypeTransfer,
		Strategy: persist.IndexerStrategyTokenScan,

		NetworkID: network.ID,
		Status:    persist.IndexerStatusOff,
	}
	transfer := persist.TokenTransfer{
		ID:        "transfer-1",
		TokenDBID: token.ID,
		TokenID:   "42",
		Sender:    "0x000000000000000000000000000000000000aaaa",
		Recipient: "0x000000000000000000000000000000000000bbbb",
		TxHash:    "0xa35cfd24689b8911232eeb7a6433fca222363e7fc9a3e1feebf72a54311cdebd",
		FetchedBy: indexer.ID,
	}
	return fixtures{network: network, token: token, indexer: indexer, transfer: transfer}
}

type fakeNetworkRepo struct {
	persist.NetworkRepository
	networks []persist.Network
	created  []persist.Network
}

func (r *fakeNetworkRepo) Create(ctx context.Context, pNetwork persist.Network) (persist.DBID, error) {
	pNetwork.ID = persist.GenerateID()
	r.created = append(r.created, pNetwork)
	r.networks = append(r.networks, pNetwork)
	return pNetwork.ID, nil
}

func (r *fakeNetworkRepo) GetByID(ctx context.Context, pID persist.DBID) (persist.Network, error) {
	for _, network := range r.networks {
		if network.ID == pID {
			return network, nil
		}
	}
	return persist.Network{}, persist.ErrNetworkNotFoundByID{ID: pID}
}

func (r *fakeNetworkRepo) GetByChainID(ctx context.Context, pChainID persist.ChainID) (persist.Network, error) {
	for _, network := range r.networks {
		if network.ChainID == pChainID {
			return network, nil
		}
	}
	return persist.Network{}, persist.ErrNetworkNotFoundByChainID{ChainID: pChainID}
}

func (r *fakeNetworkRepo) GetAll(ctx context.Context) ([]persist.Network, error) {
	return r.networks, nil
}

type fakeTokenRepo struct {
	persist.TokenRepository
	tokens  []persist.Token
	created []persist.Token
}

func (r *fakeTokenRepo) Create(ctx context.Context, pToken persist.Token) (persist.DBID, error) {
	pToken.ID = persist.GenerateID()
	r.created = append(r.created, pToken)
	r.tokens = append(r.tokens, pToken)
	return pToken.ID, nil
}

func (r *fakeTokenRepo) GetByID(ctx context.Context, pID persist.DBID) (persist.Token, error) {
	for _, token := range r.tokens {
		if token.ID == pID {
			return token, nil
		}
	}
	return persist.Token{}, persist.ErrTokenNotFoundByID{ID: pID}
}

func (r *fakeTokenRepo) GetByAddress(ctx context.Context, pAddress persist.Address) ([]persist.Token, error) {
	result := []persist.Token{}
	for _, token := range r.tokens {
		if token.Address.Equals(pAddress) {
			result = append(result, token)
		}
	}
	return result, nil
}

func (r *fakeTokenRepo) GetByNetwork(ctx context.Context, pNetworkID persist.DBID) ([]persist.Token, error) {
	result := []persist.Token{}
	for _, token := range r.tokens {
		if token.NetworkID == pNetworkID {
			result = append(result, token)
		}
	}
	return result, nil
}

func (r *fakeTokenRepo) GetByName(ctx context.Context, pName string) ([]persist.Token, error) {
	result := []persist.Token{}
	for _, token := range r.tokens {
		if token.Name == pName {
			result = append(result, token)
		}
	}
	return result, nil
}

func (r *fakeTokenRepo) GetAll(ctx context.Context) ([]persist.Token, error) {
	return r.tokens, nil
}

type fakeIndexerRepo struct {
	persist.IndexerRepository
	indexers []persist.Indexer
	watched  map[persist.DBID][]persist.DBID
}

func (r *fakeIndexerRepo) Create(ctx context.Context, pIndexer persist.Indexer) (persist.DBID, error) {
	pIndexer.ID = persist.GenerateID()
	pIndexer.Status = persist.IndexerStatusOff
	r.indexers = append(r.indexers, pIndexer)
	return pIndexer.ID, nil
}

func (r *fakeIndexerRepo) GetByID(ctx context.Context, pID persist.DBID) (persist.Indexer, error) {
	for _, indexer := range r.indexers {
		if indexer.ID == pID {
			return indexer, nil
		}
	}
	return persist.Indexer{}, persist.ErrIndexerNotFoundByID{ID: pID}
}

func (r *fakeIndexerRepo) GetByName(ctx context.Context, pName string) (persist.Indexer, error) {
	for _, indexer := range r.indexers {
		if indexer.Name == pName {
			return indexer, nil
		}
	}
	return persist.Indexer{}, persist.ErrIndexerNotFoundByName{Name: pName}
}

func (r *fakeIndexerRepo) GetAll(ctx context.Context) ([]persist.Indexer, error) {
	return r.indexers, nil
}

func (r *fakeIndexerRepo) GetByStatus(ctx context.Context, pStatus persist.IndexerStatus) ([]persist.Indexer, error) {
	result := []persist.Indexer{}
	for _, indexer := range r.indexers {
		if indexer.Status == pStatus {
			result = append(result, indexer)
		}
	}
	return result, nil
}

func (r *fakeIndexerRepo) AddWatchedToken(ctx context.Context, pIndexerID, pTokenID persist.DBID) error {
	if r.watched == nil {
		r.watched = map[persist.DBID][]persist.DBID{}
	}
	r.watched[pIndexerID] = append(r.watched[pIndexerID], pTokenID)
	return nil
}

func (r *fakeIndexerRepo) UpdateStatus(ctx context.Context, pID persist.DBID, pStatus persist.IndexerStatus) error {
	for i, indexer := range r.indexers {
		if indexer.ID == pID {
			r.indexers[i].Status = pStatus
			return nil
		}
	}
	return persist.ErrIndexerNotFoundByID{ID: pID}
}

func (r *fakeIndexerRepo) CountByStatus(ctx context.Context, pStatus persist.IndexerStatus) (int64, error) {
	indexers, _ := r.GetByStatus(ctx, pStatus)
	return int64(len(indexers)), nil
}

type fakeTransferRepo struct {
	persist.TransferRepository
	transfers []persist.TokenTransfer
}

func (r *fakeTransferRepo) GetByTxHash(ctx context.Context, pTxHash persist.TxHash) (persist.TokenTransfer, error) {
	for _, transfer := range r.transfers {
		if transfer.TxHash == pTxHash {
			return transfer, nil
		}
	}
	return persist.TokenTransfer{}, persist.ErrTransferNotFoundByTxHash{TxHash: pTxHash}
}

func (r *fakeTransferRepo) List(ctx context.Context, pQuery persist.TransferListQuery) ([]persist.TokenTransfer, error) {
	result := []persist.TokenTransfer{}
	for _, transfer := range r.transfers {
		if pQuery.Sender != "" && !transfer.Sender.Equals(pQuery.Sender) {
			continue
		}
		if pQuery.Recipient != "" && !transfer.Recipient.Equals(pQuery.Recipient) {
			continue
		}
		result = append(result, transfer)
		if pQuery.Limit > 0 && len(result) == pQuery.Limit {
			break
		}
	}
	return result, nil
}

func (r *fakeTransferRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(r.transfers)), nil
}

func (r *fakeTransferRepo) CountByIndexer(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{"mainnet-transfers": int64(len(r.transfers))}, nil
}

type fakeBalanceRepo struct {
	persist.BalanceRepository
	balances []persist.TokenBalance
}

func (r *fakeBalanceRepo) ListByHolder(ctx context.Context, pHolder persist.Address) ([]persist.TokenBalance, error) {
	result := []persist.TokenBalance{}
	for _, balance := range r.balances {
		if balance.Holder.Equals(pHolder) {
			result = append(result, balance)
		}
	}
	return result, nil
}

func (r *fakeBalanceRepo) CountTrackedByIndexer(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{"mainnet-balances": int64(len(r.balances))}, nil
}

type fakeRuntime struct {
	started []string
	stopped []string
}

func (f *fakeRuntime) StartWorker(ctx context.Context, pIndexer persist.Indexer) error {
	f.started = append(f.started, pIndexer.Name)
	return nil
}

func (f *fakeRuntime) StopWorker(ctx context.Context, pName string) error {
	f.stopped = append(f.stopped, pName)
	return nil
}

func (f *fakeRuntime) WorkerLogs(ctx context.Context, pName string, pTail int) (string, error) {
	return "log line", nil
}

type testEnv struct {
	router    *gin.Engine
	networks  *fakeNetworkRepo
	tokens    *fakeTokenRepo
	indexers  *fakeIndexerRepo
	transfers *fakeTransferRepo
	balances  *fakeBalanceRepo
	runtime   *fakeRuntime
}

func setupTest(t *testing.T, f fixtures) *testEnv {
	gin.SetMode(gin.TestMode)
	viper.Set("ENV", "production") // keep gin debug noise out of test output
	viper.Set("ADMIN_PASS", testAdminPass)
	viper.Set("ALLOWED_ORIGINS", "*")
	viper.AutomaticEnv()

	networks := &fakeNetworkRepo{networks: []persist.Network{f.network}}
	tokens := &fakeTokenRepo{tokens: []persist.Token{f.token}}
	indexers := &fakeIndexerRepo{indexers: []persist.Indexer{f.indexer}}
	transfers := &fakeTransferRepo{transfers: []persist.TokenTransfer{f.transfer}}
	balances := &fakeBalanceRepo{}
	runtime := &fakeRuntime{}

	router := CoreInit(Repos{
		NetworkRepo:  networks,
		TokenRepo:    tokens,
		IndexerRepo:  indexers,
		TransferRepo: transfers,
		BalanceRepo:  balances,
	}, launcher.New(runtime, indexers))

	return &testEnv{router: router, networks: networks, tokens: tokens, indexers: indexers, transfers: transfers, balances: balances, runtime: runtime}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", testAdminPass)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), into))
}
