package postgres_test

import (
	"context"
	"testing"

	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/stretchr/testify/require"
)

func TestNetworkRoundtrip(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	id, err := repos.NetworkRepository.Create(ctx, persist.Network{
		Name:        "polygon",
		ChainID:     137,
		RPCURL:      "https://polygon-rpc.example.com",
		MaxStep:     3000,
		Type:        persist.NetworkTypeNoFilters,
		NeedPOA:     true,
		ExplorerURL: "https://polygonscan.example.com",
	})
	require.NoError(t, err)

	network, err := repos.NetworkRepository.GetByID(ctx, id)
	require.NoError(t, err)
	a.Equal("polygon", network.Name)
	a.Equal(persist.ChainID(137), network.ChainID)
	a.Equal(persist.BlockNumber(3000), network.MaxStep)
	a.Equal(persist.NetworkTypeNoFilters, network.Type)
	a.True(network.NeedPOA)

	byChain, err := repos.NetworkRepository.GetByChainID(ctx, 137)
	require.NoError(t, err)
	a.Equal(id, byChain.ID)
}

func TestNetworkDefaultsMaxStep(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	id, err := repos.NetworkRepository.Create(ctx, persist.Network{
		Name:    "mainnet",
		ChainID: 1,
		RPCURL:  "https://rpc.example.com",
		Type:    persist.NetworkTypeFilterable,
	})
	require.NoError(t, err)

	network, err := repos.NetworkRepository.GetByID(ctx, id)
	require.NoError(t, err)
	a.Equal(persist.DefaultMaxStep, network.MaxStep)
}

func TestNetworkNotFound(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	_, err := repos.NetworkRepository.GetByID(ctx, "no-such-network")
	a.ErrorAs(err, &persist.ErrNetworkNotFoundByID{})

	_, err = repos.NetworkRepository.GetByChainID(ctx, 424242)
	a.ErrorAs(err, &persist.ErrNetworkNotFoundByChainID{})
}

func TestNetworkGetAllOrdersByName(t *testing.T) {
	a, repos := setupTest(t)
	ctx := context.Background()

	for _, it := range []struct {
		name  string
		chain persist.ChainID
	}{{"polygon", 137}, {"arbitrum", 42161}, {"mainnet", 1}} {
		_, err := repos.NetworkRepository.Create(ctx, persist.Network{
			Name:    it.name,
			ChainID: it.chain,
			RPCURL:  "https://rpc.example.com",
			Type:    persist.NetworkTypeFilterable,
		})
		require.NoError(t, err)
	}

	networks, err := repos.NetworkRepository.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 3)
	a.Equal("arbitrum", networks[0].Name)
	a.Equal("mainnet", networks[1].Name)
	a.Equal("polygon", networks[2].Name)
}
