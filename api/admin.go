package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/mikeydub/go-indexer/launcher"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/util"
)

type createNetworkInput struct {
	Name        string              `json:"name" binding:"required"`
	ChainID     persist.ChainID     `json:"chain_id" binding:"required"`
	RPCURL      string              `json:"rpc_url" binding:"required,http_url"`
	MaxStep     persist.BlockNumber `json:"max_step"`
	Type        persist.NetworkType `json:"type" binding:"required,network_type"`
	NeedPOA     bool                `json:"need_poa"`
	ExplorerURL persist.NullString  `json:"explorer_url" binding:"omitempty,explorer_url"`
}

func createNetwork(networkRepo persist.NetworkRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input createNetworkInput
		if err := c.ShouldBindJSON(&input); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		id, err := networkRepo.Create(c, persist.Network{
			Name:        input.Name,
			ChainID:     input.ChainID,
			RPCURL:      input.RPCURL,
			MaxStep:     input.MaxStep,
			Type:        input.Type,
			NeedPOA:     input.NeedPOA,
			ExplorerURL: input.ExplorerURL,
		})
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

type createTokenInput struct {
	Name     string                   `json:"name" binding:"required"`
	ChainID  persist.ChainID          `json:"chain_id" binding:"required"`
	Address  persist.Address          `json:"address" binding:"omitempty,eth_addr"`
	Type     persist.TokenType        `json:"type" binding:"required,token_type"`
	Strategy persist.FetchingStrategy `json:"strategy" binding:"required,fetching_strategy"`
}

func createToken(tokenRepo persist.TokenRepository, networkRepo persist.NetworkRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input createTokenInput
		if err := c.ShouldBindJSON(&input); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		network, err := networkRepo.GetByChainID(c, input.ChainID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.As(err, &persist.ErrNetworkNotFoundByChainID{}) {
				status = http.StatusBadRequest
			}
			util.ErrResponse(c, status, err)
			return
		}

		token := persist.Token{
			Name:      input.Name,
			Address:   input.Address,
			Type:      input.Type,
			Strategy:  input.Strategy,
			NetworkID: network.ID,
		}
		if err := binding.Validator.ValidateStruct(token); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		id, err := tokenRepo.Create(c, token)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

type createIndexerInput struct {
	Name              string                  `json:"name" binding:"required,indexer_name"`
	ChainID           persist.ChainID         `json:"chain_id" binding:"required"`
	Type              persist.IndexerType     `json:"type" binding:"required,indexer_type"`
	Strategy          persist.IndexerStrategy `json:"strategy" binding:"required,indexer_strategy"`
	Params            persist.StrategyParams  `json:"strategy_params"`
	WatchedTokens     []persist.DBID          `json:"watched_tokens" binding:"required,min=1"`
	ShortSleepSeconds int                     `json:"short_sleep_seconds" binding:"omitempty,gte=0"`
	LongSleepSeconds  int                     `json:"long_sleep_seconds" binding:"omitempty,gte=0"`
}

func createIndexer(indexerRepo persist.IndexerRepository, tokenRepo persist.TokenRepository, networkRepo persist.NetworkRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input createIndexerInput
		if err := c.ShouldBindJSON(&input); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		network, err := networkRepo.GetByChainID(c, input.ChainID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.As(err, &persist.ErrNetworkNotFoundByChainID{}) {
				status = http.StatusBadRequest
			}
			util.ErrResponse(c, status, err)
			return
		}

		indexer := persist.Indexer{
			Name:              input.Name,
			NetworkID:         network.ID,
			Type:              input.Type,
			Strategy:          input.Strategy,
			Params:            input.Params,
			ShortSleepSeconds: input.ShortSleepSeconds,
			LongSleepSeconds:  input.LongSleepSeconds,
		}
		if err := binding.Validator.ValidateStruct(indexer); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		// every watched token has to live on the indexer's network
		for _, tokenID := range input.WatchedTokens {
			token, err := tokenRepo.GetByID(c, tokenID)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.As(err, &persist.ErrTokenNotFoundByID{}) {
					status = http.StatusBadRequest
				}
				util.ErrResponse(c, status, err)
				return
			}
			if token.NetworkID != network.ID {
				util.ErrResponse(c, http.StatusBadRequest, util.ErrInvalidInput{
					Reason: fmt.Sprintf("token %s is not on chain %d", tokenID, input.ChainID),
				})
				return
			}
		}

		id, err := indexerRepo.Create(c, indexer)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}

		for _, tokenID := range input.WatchedTokens {
			if err := indexerRepo.AddWatchedToken(c, id, tokenID); err != nil {
				util.ErrResponse(c, http.StatusInternalServerError, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

func workerLifecycle(indexerRepo persist.IndexerRepository, verb func(context.Context, persist.DBID) error) gin.HandlerFunc {
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

		if err := verb(c, indexer.ID); err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, util.SuccessResponse{Success: true})
	}
}

func getWorkerLogs(indexerRepo persist.IndexerRepository, l *launcher.Launcher) gin.HandlerFunc {
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

		tail, _ := strconv.Atoi(c.Query("tail"))
		logs, err := l.Logs(c, indexer.ID, tail)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}

func startAllWorkers(l *launcher.Launcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.StartAll(c); err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, util.SuccessResponse{Success: true})
	}
}

func stopAllWorkers(l *launcher.Launcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.StopAll(c); err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, util.SuccessResponse{Success: true})
	}
}
