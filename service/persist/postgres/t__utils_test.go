package postgres_test

import (
	"context"
	"testing"

	migrate "github.com/mikeydub/go-indexer/db"
	"github.com/mikeydub/go-indexer/docker"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/service/persist/postgres"
	"github.com/mikeydub/go-indexer/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTest runs a throwaway postgres container with the full schema applied
// and returns repositories connected to it. Tests are skipped when no docker
// daemon is reachable.
func setupTest(t *testing.T) (*assert.Assertions, *postgres.Repositories) {
	composePath, err := util.FindFile("docker-compose.yml", 3)
	require.NoError(t, err)

	pg, err := docker.StartPostgres(composePath)
	if err != nil {
		t.Skipf("skipping, could not start postgres: %s", err)
	}
	t.Cleanup(func() { pg.Close() })

	client := postgres.MustCreateClient()
	m, err := migrate.RunMigration(client, "./db/migrations/core")
	require.NoError(t, err)
	m.Close()
	client.Close()

	repos := postgres.NewRepositories(postgres.MustCreateClient(), postgres.NewPgxClient())
	return assert.New(t), repos
}

func createTestNetwork(t *testing.T, repos *postgres.Repositories) persist.DBID {
	id, err := repos.NetworkRepository.Create(context.Background(), persist.Network{
		Name:    "mainnet",
		ChainID: 1,
		RPCURL:  "https://rpc.example.com",
		Type:    persist.NetworkTypeFilterable,
	})
	require.NoError(t, err)
	return id
}

func createTestToken(t *testing.T, repos *postgres.Repositories, networkID persist.DBID) persist.DBID {
	id, err := repos.TokenRepository.Create(context.Background(), persist.Token{
		Name:      "cool token",
		Address:   "0x0c2ee19b2a89943066c2dc7f1bddcc907f614033",
		Type:      persist.TokenTypeERC721,
		Strategy:  persist.FetchingStrategyEvent,
		NetworkID: networkID,
	})
	require.NoError(t, err)
	return id
}

func createTestIndexer(t *testing.T, repos *postgres.Repositories, networkID persist.DBID) persist.DBID {
	id, err := repos.IndexerRepository.Create(context.Background(), persist.Indexer{
		Name:      "mainnet-transfers",
		NetworkID: networkID,
		Type:      persist.IndexerTypeTransfer,
		Strategy:  persist.IndexerStrategyTokenScan,
	})
	require.NoError(t, err)
	return id
}
