package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/util"
)

// holderBalanceEntry is one token's slice of a holder's portfolio. The
// populated value field depends on the token type: enumerable tokens list
// owned IDs, fungible and count-based tokens carry a single amount, and
// multi-token contracts map token IDs to amounts.
type holderBalanceEntry struct {
	ChainID      persist.ChainID   `json:"chain_id"`
	TokenAddress persist.Address   `json:"token_address,omitempty"`
	TokenType    persist.TokenType `json:"token_type"`

	Network   string `json:"network,omitempty"`
	TokenName string `json:"token_name,omitempty"`

	Amount   string            `json:"amount,omitempty"`
	TokenIDs []string          `json:"token_ids,omitempty"`
	Amounts  map[string]string `json:"amounts,omitempty"`
}

func getHolderBalances(repos Repos) gin.HandlerFunc {
	return func(c *gin.Context) {
		holder := persist.Address(c.Param("holder"))
		if !common.IsHexAddress(holder.String()) {
			util.ErrResponse(c, http.StatusBadRequest, util.ErrInvalidInput{Reason: "holder must be a hex address"})
			return
		}
		verbose := c.Query("verbose") == "true"

		rows, err := repos.BalanceRepo.ListByHolder(c, holder)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}

		byToken := map[persist.DBID][]persist.TokenBalance{}
		order := make([]persist.DBID, 0, len(rows))
		for _, row := range rows {
			if _, seen := byToken[row.TokenDBID]; !seen {
				order = append(order, row.TokenDBID)
			}
			byToken[row.TokenDBID] = append(byToken[row.TokenDBID], row)
		}

		entries := make([]holderBalanceEntry, 0, len(order))
		for _, tokenDBID := range order {
			token, err := repos.TokenRepo.GetByID(c, tokenDBID)
			if err != nil {
				logger.For(c).WithError(err).WithField("token", tokenDBID).Warn("skipping balance rows for unknown token")
				continue
			}
			network, err := repos.NetworkRepo.GetByID(c, token.NetworkID)
			if err != nil {
				logger.For(c).WithError(err).WithField("network", token.NetworkID).Warn("skipping balance rows for unknown network")
				continue
			}

			entry := holderBalanceEntry{
				ChainID:      network.ChainID,
				TokenAddress: token.Address,
				TokenType:    token.Type,
			}
			if verbose {
				entry.Network = network.Name
				entry.TokenName = token.Name
			}

			fillBalanceEntry(&entry, token.Type, byToken[tokenDBID])
			entries = append(entries, entry)
		}

		c.JSON(http.StatusOK, gin.H{"holder": holder, "balances": entries})
	}
}

func fillBalanceEntry(pEntry *holderBalanceEntry, pType persist.TokenType, pRows []persist.TokenBalance) {
	switch {
	case pType == persist.TokenTypeERC721Enumerable:
		ids := make([]string, 0, len(pRows))
		for _, row := range pRows {
			if !row.TokenID.IsNull() {
				ids = append(ids, row.TokenID.String())
			}
		}
		pEntry.TokenIDs = ids
	case pType.IsMultiToken():
		amounts := map[string]string{}
		for _, row := range pRows {
			if !row.TokenID.IsNull() {
				amounts[row.TokenID.String()] = amountString(row.Amount)
			}
		}
		pEntry.Amounts = amounts
	default:
		// fungible tokens and count-based erc721 keep one amount row
		pEntry.Amount = "0"
		for _, row := range pRows {
			if row.TokenID.IsNull() {
				pEntry.Amount = amountString(row.Amount)
				break
			}
		}
	}
}

func amountString(pAmount persist.Uint256) string {
	if pAmount.IsNull() {
		return "0"
	}
	return pAmount.String()
}
