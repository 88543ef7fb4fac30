// Package utils holds small cross-cutting helpers (currently just token
// estimation) that don't belong to any single component.
package utils

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// EstimateTokens returns a real cl100k_base token count for text, replacing
// the teacher's `len/4` placeholder (utils/tokens.go) with
// github.com/pkoukk/tiktoken-go; it falls back to len/4 when the encoding
// cannot be loaded. No package in this module calls it; the chunk
// accumulator and message factory take token usage only from the
// provider's response.
func EstimateTokens(text string) int {
	enc := encoding()
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}
