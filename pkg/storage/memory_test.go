package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClientRoundTrip(t *testing.T) {
	m := NewMemoryClient("https://files.example.com/")
	ctx := context.Background()

	url, err := m.Upload(ctx, "handovers/1/handover-1.pdf", strings.NewReader("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/handovers/1/handover-1.pdf", url)

	key, err := m.KeyFromURL(url)
	require.NoError(t, err)
	data, contentType, ok := m.Object(key)
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "application/pdf", contentType)

	require.NoError(t, m.Delete(ctx, key))
	assert.Equal(t, 0, m.Len())

	_, err = m.KeyFromURL("https://elsewhere.example.com/x")
	assert.Error(t, err)
}
