package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/0xmhha/ethpeek/internal/constants"
)

// Multicall3 aggregate3 fragment. The deployment lives at the same
// address on all major chains.
const multicall3ABIJSON = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

var multicall3ABI = mustParseABI(multicall3ABIJSON)

func mustParseABI(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded ABI: %v", err))
	}
	return parsed
}

// Call is one read packed into a multicall round-trip.
type Call struct {
	Target   common.Address
	CallData []byte
}

// CallResult is the outcome of one sub-call. A failed sub-call has
// Success false and empty ReturnData; it does not fail the batch.
type CallResult struct {
	Success    bool
	ReturnData []byte
}

// Aggregate executes independent eth_call reads in a single RPC
// round-trip through the Multicall3 contract.
func (c *Client) Aggregate(ctx context.Context, calls []Call) ([]CallResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	type call3 struct {
		Target       common.Address
		AllowFailure bool
		CallData     []byte
	}

	packed := make([]call3, len(calls))
	for i, call := range calls {
		packed[i] = call3{
			Target:       call.Target,
			AllowFailure: true,
			CallData:     call.CallData,
		}
	}

	input, err := multicall3ABI.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("failed to pack aggregate3: %w", err)
	}

	output, err := c.CallContract(ctx, ethereum.CallMsg{
		To:   &constants.Multicall3Address,
		Data: input,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate3 call failed: %w", err)
	}

	var results []CallResult
	if err := multicall3ABI.UnpackIntoInterface(&results, "aggregate3", output); err != nil {
		return nil, fmt.Errorf("failed to unpack aggregate3 result: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), len(calls))
	}

	return results, nil
}
