package api

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/util"
)

var searchTxHashRegex = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")

// searchHandler resolves a free-form query against the store. Precedence:
// a tx-hash shaped query only ever matches a transfer; a contract address or
// token name resolves to the matching token (or token list when ambiguous);
// an address that matches no contract is treated as a holder.
func searchHandler(repos Repos) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			util.ErrResponse(c, http.StatusBadRequest, util.ErrInvalidInput{Reason: "query is required"})
			return
		}

		if searchTxHashRegex.MatchString(query) {
			transfer, err := repos.TransferRepo.GetByTxHash(c, persist.TxHash(query))
			if err != nil {
				status := http.StatusInternalServerError
				if errors.As(err, &persist.ErrTransferNotFoundByTxHash{}) {
					status = http.StatusNotFound
				}
				util.ErrResponse(c, status, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"type": "transfer", "transfer": transfer})
			return
		}

		tokens, err := findTokens(c, repos, query)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}

		switch {
		case len(tokens) == 1:
			c.JSON(http.StatusOK, gin.H{"type": "token", "token": tokens[0]})
		case len(tokens) > 1:
			c.JSON(http.StatusOK, gin.H{"type": "tokens", "tokens": tokens})
		case common.IsHexAddress(query):
			c.JSON(http.StatusOK, gin.H{"type": "holder", "holder": persist.Address(query)})
		default:
			util.ErrResponse(c, http.StatusNotFound, util.ErrInvalidInput{Reason: "nothing matched the query"})
		}
	}
}

func findTokens(c *gin.Context, repos Repos, pQuery string) ([]persist.Token, error) {
	if common.IsHexAddress(pQuery) {
		return repos.TokenRepo.GetByAddress(c, persist.Address(pQuery))
	}
	return repos.TokenRepo.GetByName(c, pQuery)
}
