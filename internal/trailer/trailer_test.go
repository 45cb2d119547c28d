package trailer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWellFormedTrailer(t *testing.T) {
	text := "Refactored the handler to validate input first.\n\n" +
		"---kyco\n" +
		"title: Input validation added\n" +
		"summary: Added bounds checks before parsing\n" +
		"state: done\n" +
		"status: success\n" +
		"---\n"

	result, ok := Parse(text)
	require.True(t, ok)
	require.Equal(t, "Input validation added", result.Title)
	require.Equal(t, "done", result.State)
	require.Equal(t, "success", result.Status)
}

func TestParseMissingTrailer(t *testing.T) {
	_, ok := Parse("just a plain response with no trailer")
	require.False(t, ok)
}

func TestParseUnterminatedTrailer(t *testing.T) {
	_, ok := Parse("---kyco\ntitle: oops\n")
	require.False(t, ok)
}

func TestParseMalformedYAMLIsTolerated(t *testing.T) {
	_, ok := Parse("---kyco\n: : not yaml : :\n---\n")
	require.False(t, ok)
}

func TestStripTrailerRemovesFencedBlock(t *testing.T) {
	text := "Summary text.\n---kyco\ntitle: x\n---\n"
	require.Equal(t, "Summary text.", StripTrailer(text))
}

func TestStripTrailerNoopWithoutFence(t *testing.T) {
	require.Equal(t, "plain text", StripTrailer("plain text"))
}
