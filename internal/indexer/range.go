package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// BlockRange is an inclusive span of block heights.
type BlockRange struct {
	From uint64
	To   uint64
}

func (r BlockRange) Len() uint64 { return r.To - r.From + 1 }

// SplitRange cuts [from, to] into consecutive spans of at most
// batchSize blocks. Every height appears in exactly one span.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("range end %d before start %d", to, from)
	}

	n := (to - from) / batchSize
	ranges := make([]BlockRange, 0, n+1)
	for start := from; start <= to; start += batchSize {
		end := start + batchSize - 1
		if end > to || end < start {
			end = to
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
	}
	return ranges, nil
}

// ParseAddresses validates and normalizes contract addresses from
// configuration. Blank entries are skipped.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(inputs))
	for i, raw := range inputs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("address %d is not a hex address: %q", i, raw)
		}
		out = append(out, common.HexToAddress(raw))
	}
	return out, nil
}
