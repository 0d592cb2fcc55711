package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "short code", input: "int main() { return 0; }"},
		{name: "unicode", input: "두 수의 합 🚀 — naïve"},
		{name: "html question", input: "<div><h2>Two Sum</h2><p>nums = [2,7,11,15], target = 9</p></div>"},
		{name: "multi megabyte", input: strings.Repeat("for (int i = 0; i < n; i++) sum += a[i];\n", 80000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.input)
			require.NoError(t, err)

			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.input, decoded)
		})
	}
}

func TestEncode_Compresses(t *testing.T) {
	input := strings.Repeat("abcdefgh", 4096)

	encoded, err := Encode(input)
	require.NoError(t, err)

	assert.Less(t, len(encoded), len(input)/10)
}

func TestDecode_InvalidInput(t *testing.T) {
	_, err := Decode("%%% not base64 %%%")
	assert.Error(t, err)

	_, err = Decode("aGVsbG8=") // base64("hello"), not gzip
	assert.Error(t, err)
}
