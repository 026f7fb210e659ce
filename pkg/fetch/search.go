package fetch

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"

	"github.com/0xmhha/ethpeek/pkg/events"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// ResolveEns publishes the address registered for an ENS name. An
// unregistered name publishes with Resolved false, not an error.
func (s *Service) ResolveEns(name string) {
	key := events.RequestKey{Category: KeyEns, Param: strings.ToLower(strings.TrimSpace(name))}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		if s.ens == nil {
			return events.EnsResolvedEvent{Base: base, Name: key.Param}, nil
		}
		address, resolved, err := s.ens.Resolve(ctx, key.Param)
		if err != nil {
			return nil, err
		}
		return events.EnsResolvedEvent{
			Base:     base,
			Name:     key.Param,
			Address:  address,
			Resolved: resolved,
		}, nil
	})
}

// Search classifies a free-form query and verifies what it points at.
// Addresses and block numbers pass through; a 32-byte hash is probed as
// a transaction first and a block second; an ENS name is resolved to
// its address.
func (s *Service) Search(query string) {
	key := events.RequestKey{Category: KeySearch, Param: strings.TrimSpace(query)}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		target, ok := peektypes.ParseSearch(query)
		result := events.SearchResultEvent{Base: base, Query: key.Param, Target: target}
		if !ok {
			return result, nil
		}

		switch target.Kind {
		case peektypes.SearchHash:
			found, resolved, err := s.classifyHash(ctx, target)
			if err != nil {
				return nil, err
			}
			result.Target = resolved
			result.Found = found
		case peektypes.SearchEnsName:
			if s.ens == nil {
				break
			}
			address, resolved, err := s.ens.Resolve(ctx, target.Name)
			if err != nil {
				return nil, err
			}
			if resolved {
				result.Target.Address = address
				result.Found = true
			}
		case peektypes.SearchBlockNumber:
			latest, err := s.chain.GetLatestBlockNumber(ctx)
			if err != nil {
				return nil, err
			}
			result.Found = target.BlockNumber <= latest
		default:
			result.Found = true
		}
		return result, nil
	})
}

// classifyHash decides whether a 32-byte hash names a transaction or a
// block. Transactions are far more common, so they are probed first.
func (s *Service) classifyHash(ctx context.Context, target peektypes.SearchTarget) (bool, peektypes.SearchTarget, error) {
	_, _, err := s.chain.GetTransactionByHash(ctx, target.Hash)
	if err == nil {
		target.Kind = peektypes.SearchTxHash
		return true, target, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return false, target, err
	}

	block, err := s.chain.GetBlockByHash(ctx, target.Hash)
	if err == nil && block != nil {
		target.Kind = peektypes.SearchBlockHash
		target.BlockNumber = block.NumberU64()
		return true, target, nil
	}
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return false, target, err
	}
	return false, target, nil
}
