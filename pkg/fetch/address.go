package fetch

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/constants"
	"github.com/0xmhha/ethpeek/pkg/abi"
	"github.com/0xmhha/ethpeek/pkg/cache"
	"github.com/0xmhha/ethpeek/pkg/client"
	"github.com/0xmhha/ethpeek/pkg/events"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// FetchAddressInfo publishes the full account projection: balance,
// nonce, contract metadata with proxy resolution, and explorer history
// when an API key is configured.
func (s *Service) FetchAddressInfo(address common.Address) {
	key := events.RequestKey{Category: KeyAddress, Param: peektypes.NormalizeAddress(address)}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		if cached, ok := s.cacheGet(cache.CategoryAddress, key.Param); ok {
			return events.AddressInfoEvent{Base: base, Info: cached.(*peektypes.AddressInfo)}, nil
		}

		info, err := s.addressInfo(ctx, address)
		if err != nil {
			return nil, err
		}
		s.cachePut(cache.CategoryAddress, key.Param, info)
		return events.AddressInfoEvent{Base: base, Info: info}, nil
	})
}

func (s *Service) addressInfo(ctx context.Context, address common.Address) (*peektypes.AddressInfo, error) {
	balance, err := s.chain.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	nonce, err := s.chain.NonceAt(ctx, address)
	if err != nil {
		return nil, err
	}
	code, err := s.chain.CodeAt(ctx, address)
	if err != nil {
		return nil, err
	}

	info := &peektypes.AddressInfo{
		Address:    address,
		Balance:    balance,
		Nonce:      nonce,
		IsContract: len(code) > 0,
	}
	if info.IsContract {
		info.Contract = s.contractInfo(ctx, address)
	}

	if s.history != nil && s.history.HasAPIKey() {
		history, err := s.history.TxHistory(ctx, address, s.historyLimit)
		if err != nil {
			// History is enrichment; the address view works without it.
			s.logger.Warn("explorer history lookup failed",
				zap.String("address", address.Hex()), zap.Error(err))
		} else {
			info.History = history
		}
	}
	return info, nil
}

func (s *Service) contractInfo(ctx context.Context, address common.Address) *peektypes.ContractInfo {
	contract := &peektypes.ContractInfo{Source: peektypes.AbiSourceUnknown}

	word, err := s.chain.StorageAt(ctx, address, constants.EIP1967ImplementationSlot)
	if err == nil {
		if impl := common.BytesToAddress(word); impl != (common.Address{}) {
			contract.IsProxy = true
			contract.Implementation = &impl
		}
	}

	if s.resolver != nil {
		resolved, err := s.resolver.Resolve(ctx, address)
		if err != nil {
			s.logger.Debug("abi resolution failed",
				zap.String("address", address.Hex()), zap.Error(err))
		} else if !resolved.IsUnknown() {
			contract.Name = resolved.Name
			contract.Source = resolved.Source
		}
	}
	return contract
}

// FetchTokenMetadata publishes name, symbol and decimals of a token
// contract. The three reads go out as one Multicall3 round-trip, with
// individual eth_call fallback for chains without the aggregator.
func (s *Service) FetchTokenMetadata(address common.Address) {
	key := events.RequestKey{Category: KeyTokenMetadata, Param: peektypes.NormalizeAddress(address)}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		if cached, ok := s.cacheGet(cache.CategoryTokenMetadata, key.Param); ok {
			return events.TokenMetadataEvent{Base: base, Token: cached.(*peektypes.TokenMetadata)}, nil
		}

		token := s.tokenMetadata(ctx, address)
		s.cachePut(cache.CategoryTokenMetadata, key.Param, token)
		return events.TokenMetadataEvent{Base: base, Token: token}, nil
	})
}

var tokenMetadataMethods = []string{"name", "symbol", "decimals"}

func (s *Service) tokenMetadata(ctx context.Context, address common.Address) *peektypes.TokenMetadata {
	token := &peektypes.TokenMetadata{Address: address}

	calls := make([]client.Call, 0, len(tokenMetadataMethods))
	for _, method := range tokenMetadataMethods {
		input, err := abi.PackERC20Call(method)
		if err != nil {
			s.logger.Warn("packing token metadata call failed",
				zap.String("method", method), zap.Error(err))
			return token
		}
		calls = append(calls, client.Call{Target: address, CallData: input})
	}

	results, err := s.chain.Aggregate(ctx, calls)
	if err != nil || len(results) != len(calls) {
		s.logger.Debug("multicall unavailable, falling back to individual calls",
			zap.String("address", address.Hex()), zap.Error(err))
		results = s.individualCalls(ctx, calls)
	}

	for i, method := range tokenMetadataMethods {
		if !results[i].Success || len(results[i].ReturnData) == 0 {
			continue
		}
		switch method {
		case "name":
			if name, err := abi.UnpackERC20String(method, results[i].ReturnData); err == nil {
				token.Name = name
			}
		case "symbol":
			if symbol, err := abi.UnpackERC20String(method, results[i].ReturnData); err == nil {
				token.Symbol = symbol
			}
		case "decimals":
			if decimals, err := abi.UnpackERC20Decimals(results[i].ReturnData); err == nil {
				token.Decimals = decimals
			}
		}
	}
	return token
}

func (s *Service) individualCalls(ctx context.Context, calls []client.Call) []client.CallResult {
	results := make([]client.CallResult, len(calls))
	for i, call := range calls {
		target := call.Target
		ret, err := s.chain.CallContract(ctx, ethereum.CallMsg{To: &target, Data: call.CallData})
		if err != nil {
			continue
		}
		results[i] = client.CallResult{Success: true, ReturnData: ret}
	}
	return results
}
