package oracle

import (
	"fmt"
	"strings"

	"lending/internal/errs"

	"github.com/ethereum/go-ethereum/common"
)

// FeedID identifies a price feed. Pyth feed ids are 32 bytes.
type FeedID [32]byte

// ParseFeedID decodes a 64 character hex id, with or without a 0x prefix.
func ParseFeedID(raw string) (FeedID, error) {
	var id FeedID
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	if len(trimmed) != 2*len(id) {
		return id, fmt.Errorf("feed id %q: want %d hex chars: %w", raw, 2*len(id), errs.ErrInvalidConfig)
	}
	decoded := common.FromHex(trimmed)
	if len(decoded) != len(id) {
		return id, fmt.Errorf("feed id %q: not hex: %w", raw, errs.ErrInvalidConfig)
	}
	copy(id[:], decoded)
	return id, nil
}

func (f FeedID) IsZero() bool {
	return f == FeedID{}
}

// Hex returns the id without a prefix, the form Hermes expects.
func (f FeedID) Hex() string {
	return common.Bytes2Hex(f[:])
}

func (f FeedID) String() string {
	return "0x" + f.Hex()
}

func (f FeedID) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FeedID) UnmarshalText(text []byte) error {
	parsed, err := ParseFeedID(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
