package abi

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// DecodedEvent is the result of decoding a single log against an ABI.
type DecodedEvent struct {
	Name      string
	Signature string
	Contract  common.Address
	Params    []peektypes.Param
}

// Decoder turns raw calldata and event logs into structured values.
// It never fails a whole transaction view over one undecodable item;
// what cannot be decoded comes back as an unknown entry.
type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger.Named("decoder")}
}

// DecodeCall decodes transaction input data against the given contract
// ABI. A nil or unknown ABI falls back to the builtin selector table.
// Input shorter than a 4-byte selector returns nil; anything longer
// always decodes to something — when nothing matches, only the selector
// is populated and the source is unknown.
func (d *Decoder) DecodeCall(input []byte, contract *ContractABI) *peektypes.DecodedCall {
	if len(input) < 4 {
		return nil
	}

	decoded := &peektypes.DecodedCall{
		Selector: "0x" + hex.EncodeToString(input[:4]),
		Source:   peektypes.AbiSourceUnknown,
	}

	if !contract.IsUnknown() {
		method, err := contract.Parsed().MethodById(input[:4])
		if err == nil {
			decoded.Method = method.RawName
			decoded.Signature = method.Sig
			decoded.Source = contract.Source
			decoded.Params = d.decodeArguments(method.Inputs, input[4:])
			return decoded
		}
	}

	if builtin, ok := LookupBuiltinSelector(input[:4]); ok {
		decoded.Method = builtin.Name
		decoded.Signature = builtin.Signature
		decoded.Source = peektypes.AbiSourceBuiltin
		if method, err := builtinMethodByID(input[:4]); err == nil {
			decoded.Params = d.decodeArguments(method.Inputs, input[4:])
		}
	}
	return decoded
}

// decodeArguments unpacks calldata arguments. A mismatch between the
// selector and the payload yields nil params rather than an error.
func (d *Decoder) decodeArguments(args gethabi.Arguments, data []byte) []peektypes.Param {
	values := make(map[string]interface{})
	if err := args.UnpackIntoMap(values, data); err != nil {
		d.logger.Debug("calldata does not match method arguments", zap.Error(err))
		return nil
	}
	return paramsFromArgs(args, values)
}

// DecodeLog decodes a single event log against the contract ABI.
// Returns nil when the log's topic0 has no match or the payload does
// not fit the event definition.
func (d *Decoder) DecodeLog(log *types.Log, contract *ContractABI) *DecodedEvent {
	if log == nil || len(log.Topics) == 0 || contract.IsUnknown() {
		return nil
	}

	event, err := contract.Parsed().EventByID(log.Topics[0])
	if err != nil {
		return nil
	}

	values := make(map[string]interface{})

	var indexed gethabi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics) != len(indexed)+1 {
		return nil
	}
	if err := gethabi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		d.logger.Debug("failed to parse indexed topics",
			zap.String("event", event.Name), zap.Error(err))
		return nil
	}
	if len(log.Data) > 0 {
		if err := event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
			d.logger.Debug("failed to unpack event data",
				zap.String("event", event.Name), zap.Error(err))
			return nil
		}
	}

	return &DecodedEvent{
		Name:      event.Name,
		Signature: event.Sig,
		Contract:  log.Address,
		Params:    paramsFromArgs(event.Inputs, values),
	}
}

// paramsFromArgs orders decoded values by argument position. Unnamed
// arguments get positional names the way solc emits them.
func paramsFromArgs(args gethabi.Arguments, values map[string]interface{}) []peektypes.Param {
	params := make([]peektypes.Param, 0, len(args))
	for i, arg := range args {
		name := arg.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		value, ok := values[arg.Name]
		if !ok {
			value = values[name]
		}
		params = append(params, peektypes.Param{
			Name:  name,
			Type:  arg.Type.String(),
			Value: FormatValue(value),
		})
	}
	return params
}

// FormatValue renders a decoded ABI value as a display string.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case *big.Int:
		if v == nil {
			return ""
		}
		return v.String()
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case [32]byte:
		return "0x" + hex.EncodeToString(v[:])
	case [4]byte:
		return "0x" + hex.EncodeToString(v[:])
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []common.Address:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = item.Hex()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []*big.Int:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + FormatValue(v[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// builtinMethodByID finds the full method definition for a builtin
// selector so its arguments can be decoded too.
func builtinMethodByID(selector []byte) (*gethabi.Method, error) {
	for _, builtin := range builtins {
		if method, err := builtin.template.Parsed().MethodById(selector); err == nil {
			return method, nil
		}
	}
	return nil, fmt.Errorf("no builtin method for selector 0x%s", hex.EncodeToString(selector))
}
