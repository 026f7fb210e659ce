package abi

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// Minimal but complete interface ABIs for the common token standards.
const (
	erc20ABIJSON = `[
		{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
		{"type":"event","name":"Approval","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"spender","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
	]`

	erc721ABIJSON = `[
		{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
		{"type":"function","name":"getApproved","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"supportsInterface","stateMutability":"view","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"Approval","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"approved","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"ApprovalForAll","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"operator","type":"address","indexed":true},{"name":"approved","type":"bool","indexed":false}]}
	]`

	erc1155ABIJSON = `[
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"balanceOfBatch","stateMutability":"view","inputs":[{"name":"accounts","type":"address[]"},{"name":"ids","type":"uint256[]"}],"outputs":[{"name":"","type":"uint256[]"}]},
		{"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
		{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"safeBatchTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"ids","type":"uint256[]"},{"name":"amounts","type":"uint256[]"},{"name":"data","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"uri","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"supportsInterface","stateMutability":"view","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"event","name":"TransferSingle","inputs":[{"name":"operator","type":"address","indexed":true},{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"id","type":"uint256","indexed":false},{"name":"value","type":"uint256","indexed":false}]},
		{"type":"event","name":"TransferBatch","inputs":[{"name":"operator","type":"address","indexed":true},{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"ids","type":"uint256[]","indexed":false},{"name":"values","type":"uint256[]","indexed":false}]},
		{"type":"event","name":"ApprovalForAll","inputs":[{"name":"account","type":"address","indexed":true},{"name":"operator","type":"address","indexed":true},{"name":"approved","type":"bool","indexed":false}]}
	]`
)

// Builtin bundles a standard's parsed ABI with detection data.
type Builtin struct {
	Name     string
	Standard peektypes.TokenStandard
	// InterfaceID is the ERC-165 interface identifier, zero for ERC-20
	// which predates ERC-165.
	InterfaceID [4]byte
	// CoreSelectors are the function selectors a conforming deployed
	// bytecode is expected to embed.
	CoreSelectors []string

	template *ContractABI
}

var builtins = mustBuiltins()

func mustBuiltins() []*Builtin {
	erc20, err := NewContractABI(common.Address{}, "ERC20", peektypes.AbiSourceBuiltin, erc20ABIJSON)
	if err != nil {
		panic(fmt.Sprintf("invalid ERC20 ABI: %v", err))
	}
	erc721, err := NewContractABI(common.Address{}, "ERC721", peektypes.AbiSourceBuiltin, erc721ABIJSON)
	if err != nil {
		panic(fmt.Sprintf("invalid ERC721 ABI: %v", err))
	}
	erc1155, err := NewContractABI(common.Address{}, "ERC1155", peektypes.AbiSourceBuiltin, erc1155ABIJSON)
	if err != nil {
		panic(fmt.Sprintf("invalid ERC1155 ABI: %v", err))
	}

	return []*Builtin{
		{
			Name:        "ERC721",
			Standard:    peektypes.StandardERC721,
			InterfaceID: [4]byte{0x80, 0xac, 0x58, 0xcd},
			CoreSelectors: []string{
				"6352211e", // ownerOf(uint256)
				"70a08231", // balanceOf(address)
				"42842e0e", // safeTransferFrom(address,address,uint256)
				"23b872dd", // transferFrom(address,address,uint256)
				"081812fc", // getApproved(uint256)
				"a22cb465", // setApprovalForAll(address,bool)
			},
			template: erc721,
		},
		{
			Name:        "ERC1155",
			Standard:    peektypes.StandardERC1155,
			InterfaceID: [4]byte{0xd9, 0xb6, 0x7a, 0x26},
			CoreSelectors: []string{
				"00fdd58e", // balanceOf(address,uint256)
				"4e1273f4", // balanceOfBatch(address[],uint256[])
				"f242432a", // safeTransferFrom(address,address,uint256,uint256,bytes)
				"2eb2c2d6", // safeBatchTransferFrom(address,address,uint256[],uint256[],bytes)
				"a22cb465", // setApprovalForAll(address,bool)
			},
			template: erc1155,
		},
		// ERC-20 goes last: its selector set overlaps ERC-721's.
		{
			Name:     "ERC20",
			Standard: peektypes.StandardERC20,
			CoreSelectors: []string{
				"a9059cbb", // transfer(address,uint256)
				"70a08231", // balanceOf(address)
				"18160ddd", // totalSupply()
				"095ea7b3", // approve(address,uint256)
				"23b872dd", // transferFrom(address,address,uint256)
				"dd62ed3e", // allowance(address,address)
			},
			template: erc20,
		},
	}
}

// Builtins returns the standards in matching order, ERC-165-capable
// standards first.
func Builtins() []*Builtin {
	return builtins
}

// ABIFor returns the builtin's ABI attributed to the given address.
func (b *Builtin) ABIFor(address common.Address) *ContractABI {
	return b.template.WithAddress(address)
}

// MatchesBytecode reports whether the deployed bytecode embeds at least
// minSelectors of the standard's core selectors. The hex scan is a
// heuristic; ERC-165 answers take precedence when available.
func (b *Builtin) MatchesBytecode(code []byte, minSelectors int) bool {
	if len(code) == 0 {
		return false
	}
	codeHex := hex.EncodeToString(code)
	found := 0
	for _, selector := range b.CoreSelectors {
		if strings.Contains(codeHex, selector) {
			found++
			if found >= minSelectors {
				return true
			}
		}
	}
	return false
}

// BuiltinMethod describes a known selector for fallback decoding when no
// full ABI is available.
type BuiltinMethod struct {
	Name      string
	Signature string
}

// builtinSelectors indexes the methods of all builtin standards by
// selector hex (without 0x).
var builtinSelectors = buildSelectorIndex()

func buildSelectorIndex() map[string]BuiltinMethod {
	index := make(map[string]BuiltinMethod)
	for _, builtin := range builtins {
		for name := range builtin.template.Parsed().Methods {
			method := builtin.template.Parsed().Methods[name]
			selector := hex.EncodeToString(method.ID)
			if _, exists := index[selector]; !exists {
				index[selector] = BuiltinMethod{
					Name:      method.RawName,
					Signature: method.Sig,
				}
			}
		}
	}
	return index
}

// PackERC20Call builds calldata for a no-argument ERC-20 view method
// such as name, symbol or decimals.
func PackERC20Call(method string) ([]byte, error) {
	return builtinForStandard(peektypes.StandardERC20).Parsed().Pack(method)
}

// UnpackERC20String decodes the string return of name or symbol.
func UnpackERC20String(method string, data []byte) (string, error) {
	values, err := builtinForStandard(peektypes.StandardERC20).Parsed().Unpack(method, data)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%s returned %d values", method, len(values))
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s returned %T, not string", method, values[0])
	}
	return value, nil
}

// UnpackERC20Decimals decodes the uint8 return of decimals.
func UnpackERC20Decimals(data []byte) (uint8, error) {
	values, err := builtinForStandard(peektypes.StandardERC20).Parsed().Unpack("decimals", data)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("decimals returned %d values", len(values))
	}
	value, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals returned %T, not uint8", values[0])
	}
	return value, nil
}

// PackSupportsInterface builds calldata for an ERC-165
// supportsInterface(bytes4) probe.
func PackSupportsInterface(interfaceID [4]byte) ([]byte, error) {
	return builtinForStandard(peektypes.StandardERC721).Parsed().Pack("supportsInterface", interfaceID)
}

// LookupBuiltinSelector matches a 4-byte selector against the builtin
// standards.
func LookupBuiltinSelector(selector []byte) (BuiltinMethod, bool) {
	if len(selector) < 4 {
		return BuiltinMethod{}, false
	}
	method, ok := builtinSelectors[hex.EncodeToString(selector[:4])]
	return method, ok
}
