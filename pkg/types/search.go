package types

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SearchKind classifies a free-form search query.
type SearchKind uint8

const (
	SearchUnknown SearchKind = iota
	SearchAddress
	// SearchHash is a 32-byte hash; it may name either a transaction or a
	// block, the caller tries the transaction first.
	SearchHash
	SearchBlockNumber
	SearchEnsName
	// SearchTxHash and SearchBlockHash are refinements of SearchHash,
	// assigned after probing the chain for what the hash names.
	SearchTxHash
	SearchBlockHash
)

// SearchTarget is a parsed search query. Exactly one field matching Kind
// is populated.
type SearchTarget struct {
	Kind        SearchKind
	Address     common.Address
	Hash        common.Hash
	BlockNumber uint64
	Name        string
}

// ParseSearch classifies a query string. Returns false when the query
// matches no known shape.
func ParseSearch(query string) (SearchTarget, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return SearchTarget{}, false
	}

	if strings.HasSuffix(strings.ToLower(q), ".eth") {
		return SearchTarget{Kind: SearchEnsName, Name: strings.ToLower(q)}, true
	}

	if strings.HasPrefix(q, "0x") || strings.HasPrefix(q, "0X") {
		hexPart := q[2:]
		if !isHex(hexPart) {
			return SearchTarget{}, false
		}
		switch len(hexPart) {
		case 40:
			return SearchTarget{Kind: SearchAddress, Address: common.HexToAddress(q)}, true
		case 64:
			return SearchTarget{Kind: SearchHash, Hash: common.HexToHash(q)}, true
		}
		return SearchTarget{}, false
	}

	if number, err := strconv.ParseUint(q, 10, 64); err == nil {
		return SearchTarget{Kind: SearchBlockNumber, BlockNumber: number}, true
	}

	return SearchTarget{}, false
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
