package fetch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/ethpeek/pkg/cache"
	"github.com/0xmhha/ethpeek/pkg/events"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// FetchLatestBlockNumber publishes a LatestBlockEvent with the chain
// head number. Never served from cache; the head moves every block.
func (s *Service) FetchLatestBlockNumber() {
	key := events.RequestKey{Category: KeyLatestBlock}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		number, err := s.chain.GetLatestBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		return events.LatestBlockEvent{Base: base, Number: number}, nil
	})
}

// FetchRecentBlocks publishes summaries for the newest count blocks,
// newest first, fetched in one batch round-trip.
func (s *Service) FetchRecentBlocks(count int) {
	key := events.RequestKey{Category: KeyRecentBlocks, Param: strconv.Itoa(count)}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		if count <= 0 {
			return events.RecentBlocksEvent{Base: base}, nil
		}
		latest, err := s.chain.GetLatestBlockNumber(ctx)
		if err != nil {
			return nil, err
		}

		numbers := make([]uint64, 0, count)
		for i := 0; i < count && uint64(i) <= latest; i++ {
			numbers = append(numbers, latest-uint64(i))
		}
		blocks, err := s.chain.BatchGetBlocks(ctx, numbers)
		if err != nil {
			return nil, err
		}

		summaries := make([]peektypes.BlockSummary, 0, len(blocks))
		for _, block := range blocks {
			if block == nil {
				continue
			}
			summaries = append(summaries, blockSummary(block))
		}
		return events.RecentBlocksEvent{Base: base, Blocks: summaries}, nil
	})
}

// FetchBlockDetail publishes the full projection of one block.
func (s *Service) FetchBlockDetail(number uint64) {
	key := events.RequestKey{Category: KeyBlockDetail, Param: strconv.FormatUint(number, 10)}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		if cached, ok := s.cacheGet(cache.CategoryBlockDetail, key.Param); ok {
			return events.BlockDetailEvent{Base: base, Block: cached.(*peektypes.BlockDetail)}, nil
		}

		block, err := s.chain.GetBlockByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		detail, err := s.blockDetail(ctx, block)
		if err != nil {
			return nil, err
		}
		s.cachePut(cache.CategoryBlockDetail, key.Param, detail)
		return events.BlockDetailEvent{Base: base, Block: detail}, nil
	})
}

func blockSummary(block *types.Block) peektypes.BlockSummary {
	return peektypes.BlockSummary{
		Number:   block.NumberU64(),
		Hash:     block.Hash(),
		Time:     block.Time(),
		TxCount:  len(block.Transactions()),
		GasUsed:  block.GasUsed(),
		GasLimit: block.GasLimit(),
		BaseFee:  block.BaseFee(),
		Miner:    block.Coinbase(),
	}
}

func (s *Service) blockDetail(ctx context.Context, block *types.Block) (*peektypes.BlockDetail, error) {
	chainID, err := s.resolveChainID(ctx)
	if err != nil {
		return nil, err
	}
	signer := types.LatestSignerForChainID(chainID)

	txs := make([]peektypes.TransactionSummary, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		from, err := types.Sender(signer, tx)
		if err != nil {
			return nil, fmt.Errorf("recovering sender of %s: %w", tx.Hash().Hex(), err)
		}
		txs = append(txs, peektypes.TransactionSummary{
			Hash:  tx.Hash(),
			From:  from,
			To:    tx.To(),
			Value: tx.Value(),
			Nonce: tx.Nonce(),
		})
	}

	return &peektypes.BlockDetail{
		BlockSummary: blockSummary(block),
		ParentHash:   block.ParentHash(),
		StateRoot:    block.Root(),
		Transactions: txs,
	}, nil
}
