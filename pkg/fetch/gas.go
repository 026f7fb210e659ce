package fetch

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/constants"
	"github.com/0xmhha/ethpeek/pkg/cache"
	"github.com/0xmhha/ethpeek/pkg/events"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// gasPercentiles are the priority fee percentiles behind the slow,
// standard and fast tiers.
var gasPercentiles = []float64{25, 50, 75}

// FetchGasInfo publishes a fee snapshot derived from recent fee
// history. Nodes without eth_feeHistory degrade to a flat
// eth_gasPrice answer.
func (s *Service) FetchGasInfo() {
	key := events.RequestKey{Category: KeyGasInfo}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		if cached, ok := s.cacheGet(cache.CategoryGasInfo, key.Category); ok {
			return events.GasInfoEvent{Base: base, Gas: cached.(*peektypes.GasInfo)}, nil
		}

		gas, err := s.gasInfo(ctx)
		if err != nil {
			return nil, err
		}
		s.cachePut(cache.CategoryGasInfo, key.Category, gas)
		return events.GasInfoEvent{Base: base, Gas: gas}, nil
	})
}

func (s *Service) gasInfo(ctx context.Context) (*peektypes.GasInfo, error) {
	history, err := s.chain.FeeHistory(ctx, constants.FeeHistoryBlockCount, gasPercentiles)
	if err != nil || len(history.BaseFee) == 0 {
		s.logger.Debug("fee history unavailable, falling back to gas price", zap.Error(err))
		return s.gasInfoFromGasPrice(ctx)
	}

	// The last BaseFee entry is the projection for the next block.
	baseFee := history.BaseFee[len(history.BaseFee)-1]
	tiers := averageRewards(history, len(gasPercentiles))

	return &peektypes.GasInfo{
		BaseFee:   baseFee,
		Slow:      new(big.Int).Add(baseFee, tiers[0]),
		Standard:  new(big.Int).Add(baseFee, tiers[1]),
		Fast:      new(big.Int).Add(baseFee, tiers[2]),
		Congested: isCongested(baseFee),
	}, nil
}

func (s *Service) gasInfoFromGasPrice(ctx context.Context) (*peektypes.GasInfo, error) {
	price, err := s.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return &peektypes.GasInfo{
		BaseFee:   price,
		Slow:      price,
		Standard:  price,
		Fast:      price,
		Congested: isCongested(price),
	}, nil
}

// averageRewards computes the mean priority fee per percentile across
// the sampled blocks. Missing samples count as zero.
func averageRewards(history *ethereum.FeeHistory, tiers int) []*big.Int {
	sums := make([]*big.Int, tiers)
	for i := range sums {
		sums[i] = new(big.Int)
	}
	if len(history.Reward) == 0 {
		return sums
	}
	for _, blockRewards := range history.Reward {
		for i := 0; i < tiers && i < len(blockRewards); i++ {
			if blockRewards[i] != nil {
				sums[i].Add(sums[i], blockRewards[i])
			}
		}
	}
	count := big.NewInt(int64(len(history.Reward)))
	for i := range sums {
		sums[i].Div(sums[i], count)
	}
	return sums
}

func isCongested(baseFee *big.Int) bool {
	return baseFee.Cmp(big.NewInt(constants.CongestionBaseFeeWei)) > 0
}
