package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		config *Masking
		want   string
	}{
		{
			name:   "default shows four characters",
			value:  "ATCTT3xFfGN0abcdef",
			config: nil,
			want:   "ATCT****",
		},
		{
			name:   "partial",
			value:  "sk_live_abc123def456",
			config: &Masking{PartialShowChars: 6, Replacement: "***"},
			want:   "sk_liv***",
		},
		{
			name:   "short value fully masked",
			value:  "abcdefgh",
			config: nil,
			want:   "****",
		},
		{
			name:   "no replacement",
			value:  "abcdefghijkl",
			config: &Masking{PartialShowChars: 2},
			want:   "ab***",
		},
		{
			name:   "zero show chars",
			value:  "abcdefghijkl",
			config: &Masking{Replacement: "[hidden]"},
			want:   "[hidden]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskValue(tt.value, tt.config))
		})
	}
}
