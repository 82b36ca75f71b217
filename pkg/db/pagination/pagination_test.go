package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", Timestamp: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", decoded.ID)
	assert.Equal(t, "2026-01-02T03:04:05Z", decoded.Timestamp)
}

func TestDecodeCursor_Garbage(t *testing.T) {
	_, err := DecodeCursor("not base64 at all!!!")
	assert.Error(t, err)

	// Valid base64 that is not JSON.
	_, err = DecodeCursor("bm90IGpzb24=")
	assert.Error(t, err)
}

type item struct{ id string }

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(i *item) string { return i.id }

	info := BuildCursorPageInfo([]*item{}, 2, extract)
	require.NotNil(t, info)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	full := []*item{{"a"}, {"b"}, {"c"}}
	info = BuildCursorPageInfo(full, 2, extract)
	require.NotNil(t, info)
	assert.True(t, info.HasMore)
	assert.Equal(t, "b", info.NextPageToken)

	partial := []*item{{"a"}}
	info = BuildCursorPageInfo(partial, 2, extract)
	require.NotNil(t, info)
	assert.False(t, info.HasMore)
	assert.Equal(t, "a", info.NextPageToken)
}
