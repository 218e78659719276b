package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "abc", TruncateRunes("abcdef", 3))
	require.Equal(t, "abc", TruncateRunes("abc", 10))
	require.Equal(t, "", TruncateRunes("abc", 0))
	require.Equal(t, "héll", TruncateRunes("héllo", 4))
	require.Equal(t, "日本", TruncateRunes("日本語", 2))
}
