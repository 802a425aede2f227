package validate

import (
	"regexp"
	"strings"

	"github.com/mikeydub/go-indexer/service/persist"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

var indexerNameRegex = regexp.MustCompile("^[a-z][a-z0-9-]+$")
var txHashRegex = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")

func RegisterCustomValidators(v *validator.Validate) {
	v.RegisterValidation("eth_addr", EthValidator)
	v.RegisterValidation("tx_hash", TxHashValidator)
	v.RegisterValidation("indexer_name", IndexerNameValidator)
	v.RegisterValidation("http_url", HTTPURLValidator)
	v.RegisterValidation("explorer_url", ExplorerURLValidator)
	v.RegisterValidation("token_type", TokenTypeValidator)
	v.RegisterValidation("network_type", NetworkTypeValidator)
	v.RegisterValidation("fetching_strategy", FetchingStrategyValidator)
	v.RegisterValidation("indexer_type", IndexerTypeValidator)
	v.RegisterValidation("indexer_strategy", IndexerStrategyValidator)

	v.RegisterStructValidation(TokenValidator, persist.Token{})
	v.RegisterStructValidation(IndexerValidator, persist.Indexer{})
}

// TokenValidator checks the coupling between a token's type, address and
// fetching strategy: native currencies have no contract and are read from
// receipts, everything else has a contract and is read from event logs.
func TokenValidator(sl validator.StructLevel) {
	token := sl.Current().Interface().(persist.Token)

	if token.Type.IsNative() {
		if token.Address != "" {
			sl.ReportError(token.Address, "Address", "Address", "excluded_for_native", "")
		}
		if token.Strategy != persist.FetchingStrategyReceipt {
			sl.ReportError(token.Strategy, "Strategy", "Strategy", "receipt_for_native", "")
		}
		return
	}

	if !common.IsHexAddress(string(token.Address)) {
		sl.ReportError(token.Address, "Address", "Address", "eth_addr", "")
	}
	if token.Strategy != persist.FetchingStrategyEvent {
		sl.ReportError(token.Strategy, "Strategy", "Strategy", "event_for_contract", "")
	}
}

// IndexerValidator checks an indexer's strategy against its type and the
// strategy's required parameters.
func IndexerValidator(sl validator.StructLevel) {
	indexer := sl.Current().Interface().(persist.Indexer)

	if !indexer.Strategy.ValidFor(indexer.Type) {
		sl.ReportError(indexer.Strategy, "Strategy", "Strategy", "indexer_strategy", "")
		return
	}

	switch indexer.Strategy {
	case persist.IndexerStrategyRecipient:
		requireAddressParam(sl, indexer.Params, "recipient")
	case persist.IndexerStrategySender:
		requireAddressParam(sl, indexer.Params, "sender")
	case persist.IndexerStrategySpecifiedHolders:
		holders, ok := indexer.Params.StringList("holders")
		if !ok || len(holders) == 0 {
			sl.ReportError(indexer.Params, "Params", "Params", "holders_required", "")
			return
		}
		for _, holder := range holders {
			if !common.IsHexAddress(holder) {
				sl.ReportError(indexer.Params, "Params", "Params", "eth_addr", "")
				return
			}
		}
	}
}

func requireAddressParam(sl validator.StructLevel, params persist.StrategyParams, key string) {
	it, ok := params.String(key)
	if !ok {
		sl.ReportError(params, "Params", "Params", key+"_required", "")
		return
	}
	if !common.IsHexAddress(it) {
		sl.ReportError(params, "Params", "Params", "eth_addr", "")
	}
}

// EthValidator validates ethereum addresses
var EthValidator validator.Func = func(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	if addr == "" {
		return true
	}
	return common.IsHexAddress(addr)
}

// TxHashValidator validates transaction hashes
var TxHashValidator validator.Func = func(fl validator.FieldLevel) bool {
	hash := fl.Field().String()
	if hash == "" {
		return true
	}
	return txHashRegex.MatchString(hash)
}

// IndexerNameValidator ensures indexer names are usable as container and host names
var IndexerNameValidator validator.Func = func(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true
	}
	return indexerNameRegex.MatchString(name)
}

// HTTPURLValidator validates http and https URLs
var HTTPURLValidator validator.Func = func(fl validator.FieldLevel) bool {
	it := fl.Field().String()
	if it == "" {
		return true
	}
	return strings.HasPrefix(it, "http://") || strings.HasPrefix(it, "https://")
}

// ExplorerURLValidator validates explorer URL prefixes, which get paths
// appended to them and must not end with a slash
var ExplorerURLValidator validator.Func = func(fl validator.FieldLevel) bool {
	it := fl.Field().String()
	if it == "" {
		return true
	}
	if !strings.HasPrefix(it, "http://") && !strings.HasPrefix(it, "https://") {
		return false
	}
	return !strings.HasSuffix(it, "/")
}

// TokenTypeValidator ensures the specified token type is one we support
var TokenTypeValidator validator.Func = func(fl validator.FieldLevel) bool {
	switch persist.TokenType(fl.Field().String()) {
	case persist.TokenTypeNative, persist.TokenTypeERC20, persist.TokenTypeERC721,
		persist.TokenTypeERC721Enumerable, persist.TokenTypeERC777, persist.TokenTypeERC1155:
		return true
	}
	return false
}

// NetworkTypeValidator ensures the specified network type is one we support
var NetworkTypeValidator validator.Func = func(fl validator.FieldLevel) bool {
	switch persist.NetworkType(fl.Field().String()) {
	case persist.NetworkTypeFilterable, persist.NetworkTypeNoFilters:
		return true
	}
	return false
}

// FetchingStrategyValidator ensures the specified fetching strategy is one we support
var FetchingStrategyValidator validator.Func = func(fl validator.FieldLevel) bool {
	switch persist.FetchingStrategy(fl.Field().String()) {
	case persist.FetchingStrategyEvent, persist.FetchingStrategyReceipt:
		return true
	}
	return false
}

// IndexerTypeValidator ensures the specified indexer type is one we support
var IndexerTypeValidator validator.Func = func(fl validator.FieldLevel) bool {
	switch persist.IndexerType(fl.Field().String()) {
	case persist.IndexerTypeTransfer, persist.IndexerTypeBalance:
		return true
	}
	return false
}

// IndexerStrategyValidator ensures the specified strategy is one we support
var IndexerStrategyValidator validator.Func = func(fl validator.FieldLevel) bool {
	switch persist.IndexerStrategy(fl.Field().String()) {
	case persist.IndexerStrategyRecipient, persist.IndexerStrategySender,
		persist.IndexerStrategyTokenScan, persist.IndexerStrategySpecifiedHolders,
		persist.IndexerStrategyTransfersParticipants:
		return true
	}
	return false
}
