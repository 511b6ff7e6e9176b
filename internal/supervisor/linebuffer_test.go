package supervisor

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLineBuffer_SplitsAcrossChunks verifies a line split over several chunks is emitted once, whole.
func TestLineBuffer_SplitsAcrossChunks(t *testing.T) {
	var b lineBuffer

	require.Empty(t, b.Write([]byte("Listening on po")))
	require.Empty(t, b.Write([]byte("rt 50000 for gdb")))
	require.Equal(t, []string{"Listening on port 50000 for gdb connections", "Info : next"},
		b.Write([]byte(" connections\nInfo : next\npartial")))
	require.Equal(t, "partial", b.Pending())
}

// TestLineBuffer_EmptyLines verifies consecutive newlines yield empty lines.
func TestLineBuffer_EmptyLines(t *testing.T) {
	var b lineBuffer

	require.Equal(t, []string{"a", "", "b"}, b.Write([]byte("a\n\nb\n")))
	require.Equal(t, "", b.Pending())

	line, ok := b.Flush()
	require.False(t, ok)
	require.Empty(t, line)
}

// TestLineBuffer_ConcatenationPreservesInput verifies that for any chunking,
// the emitted lines joined with newlines plus the pending tail reproduce the input.
func TestLineBuffer_ConcatenationPreservesInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []byte("ab \n\r:")

	for iter := 0; iter < 200; iter++ {
		input := make([]byte, rng.Intn(200))
		for i := range input {
			input[i] = alphabet[rng.Intn(len(alphabet))]
		}

		var b lineBuffer
		var lines []string
		for rest := input; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			for _, line := range b.Write(rest[:n]) {
				require.NotContains(t, line, "\n")
				lines = append(lines, line)
			}
			rest = rest[n:]
		}

		var sb strings.Builder
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		sb.WriteString(b.Pending())
		require.Equal(t, string(input), sb.String())
	}
}
