package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikeydub/go-indexer/launcher"
	"github.com/mikeydub/go-indexer/middleware"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/util"
)

const (
	defaultTransferPage = 100
	maxTransferPage     = 500
)

func handlersInit(router *gin.Engine, repos Repos, l *launcher.Launcher) *gin.Engine {
	router.GET("/health", util.HealthCheckHandler())
	router.GET("/metrics", gin.WrapH(metricsHandler(repos)))

	apiGroup := router.Group("/api")
	apiGroup.GET("/networks", getNetworks(repos.NetworkRepo))
	apiGroup.GET("/networks/:chain_id", getNetworkByChainID(repos.NetworkRepo))
	apiGroup.GET("/tokens", getTokens(repos.TokenRepo, repos.NetworkRepo))
	apiGroup.GET("/indexers", getIndexers(repos.IndexerRepo))
	apiGroup.GET("/indexers/:name", getIndexerByName(repos.IndexerRepo))
	apiGroup.GET("/transfers", getTransfers(repos.TransferRepo))
	apiGroup.GET("/transfers/:tx_hash", getTransferByTxHash(repos.TransferRepo))
	apiGroup.GET("/holders/:holder/balances", getHolderBalances(repos))
	apiGroup.GET("/search", searchHandler(repos))

	adminGroup := router.Group("/admin", middleware.AdminRequired())
	adminGroup.POST("/networks", createNetwork(repos.NetworkRepo))
	adminGroup.POST("/tokens", createToken(repos.TokenRepo, repos.NetworkRepo))
	adminGroup.POST("/indexers", createIndexer(repos.IndexerRepo, repos.TokenRepo, repos.NetworkRepo))
	adminGroup.POST("/indexers/start-all", startAllWorkers(l))
	adminGroup.POST("/indexers/stop-all", stopAllWorkers(l))
	adminGroup.POST("/indexers/:name/create", workerLifecycle(repos.IndexerRepo, l.Create))
	adminGroup.POST("/indexers/:name/restart", workerLifecycle(repos.IndexerRepo, l.Restart))
	adminGroup.POST("/indexers/:name/remove", workerLifecycle(repos.IndexerRepo, l.Remove))
	adminGroup.GET("/indexers/:name/logs", getWorkerLogs(repos.IndexerRepo, l))

	return router
}

func getNetworks(networkRepo persist.NetworkRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		networks, err := networkRepo.GetAll(c)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"networks": networks})
	}
}

func getNetworkByChainID(networkRepo persist.NetworkRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		chainID, err := strconv.ParseUint(c.Param("chain_id"), 10, 64)
		if err != nil {
			util.ErrResponse(c, http.StatusBadRequest, util.ErrInvalidInput{Reason: "chain_id must be a number"})
			return
		}

		network, err := networkRepo.GetByChainID(c, persist.ChainID(chainID))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.As(err, &persist.ErrNetworkNotFoundByChainID{}) {
				status = http.StatusNotFound
			}
			util.ErrResponse(c, status, err)
			return
		}
		c.JSON(http.StatusOK, network)
	}
}

type getTokensInput struct {
	ChainID *uint64         `form:"chain_id"`
	Address persist.Address `form:"address" binding:"omitempty,eth_addr"`
}

func getTokens(tokenRepo persist.TokenRepository, networkRepo persist.NetworkRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input getTokensInput
		if err := c.ShouldBindQuery(&input); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		var networkID persist.DBID
		if input.ChainID != nil {
			network, err := networkRepo.GetByChainID(c, persist.ChainID(*input.ChainID))
			if err != nil {
				status := http.StatusInternalServerError
				if errors.As(err, &persist.ErrNetworkNotFoundByChainID{}) {
					status = http.StatusNotFound
				}
				util.ErrResponse(c, status, err)
				return
			}
			networkID = network.ID
		}

		var tokens []persist.Token
		var err error
		switch {
		case input.Address != "":
			tokens, err = tokenRepo.GetByAddress(c, input.Address)
			if err == nil && networkID != "" {
				filtered := tokens[:0]
				for _, token := range tokens {
					if token.NetworkID == networkID {
						filtered = append(filtered, token)
					}
				}
				tokens = filtered
			}
		case networkID != "":
			tokens, err = tokenRepo.GetByNetwork(c, networkID)
		default:
			tokens, err = tokenRepo.GetAll(c)
		}
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tokens": tokens})
	}
}

func getIndexers(indexerRepo persist.IndexerRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		indexers, err := indexerRepo.GetAll(c)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"indexers": indexers})
	}
}

func getIndexerByName(indexerRepo persist.IndexerRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		indexer, err := indexerRepo.GetByName(c, c.Param("name"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.As(err, &persist.ErrIndexerNotFoundByName{}) {
				status = http.StatusNotFound
			}
			util.ErrResponse(c, status, err)
			return
		}
		c.JSON(http.StatusOK, indexer)
	}
}

type getTransfersInput struct {
	Sender    persist.Address `form:"sender" binding:"omitempty,eth_addr"`
	Recipient persist.Address `form:"recipient" binding:"omitempty,eth_addr"`
	Token     persist.DBID    `form:"token"`
	Limit     int             `form:"limit" binding:"omitempty,gte=0"`
}

func getTransfers(transferRepo persist.TransferRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input getTransfersInput
		if err := c.ShouldBindQuery(&input); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		limit := input.Limit
		if limit == 0 {
			limit = defaultTransferPage
		}
		if limit > maxTransferPage {
			limit = maxTransferPage
		}

		query := persist.TransferListQuery{
			Sender:    input.Sender,
			Recipient: input.Recipient,
			Limit:     limit,
		}
		if input.Token != "" {
			query.TokenDBIDs = []persist.DBID{input.Token}
		}

		transfers, err := transferRepo.List(c, query)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transfers": transfers})
	}
}

func getTransferByTxHash(transferRepo persist.TransferRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := persist.TxHash(c.Param("tx_hash"))
		transfer, err := transferRepo.GetByTxHash(c, hash)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.As(err, &persist.ErrTransferNotFoundByTxHash{}) {
				status = http.StatusNotFound
			}
			util.ErrResponse(c, status, err)
			return
		}
		c.JSON(http.StatusOK, transfer)
	}
}
