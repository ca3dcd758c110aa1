package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRandomEndpoint(t *testing.T) {
	_, err := SelectRandomEndpoint(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no RPC endpoints configured")

	only := []string{"https://api.mainnet-beta.solana.com/"}
	got, err := SelectRandomEndpoint(only)
	require.NoError(t, err)
	assert.Equal(t, only[0], got)

	// Sixty draws over three nodes land on more than one of them.
	nodes := []string{"https://a.example", "https://b.example", "https://c.example"}
	seen := map[string]int{}
	for i := 0; i < 60; i++ {
		got, err := SelectRandomEndpoint(nodes)
		require.NoError(t, err)
		require.Contains(t, nodes, got)
		seen[got]++
	}
	assert.Greater(t, len(seen), 1)
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://mainnet.helius-rpc.com/?api-key=secret", want: "mainnet.helius-rpc.com"},
		{url: "https://api.mainnet-beta.solana.com/", want: "api.mainnet-beta.solana.com"},
		{url: "http://localhost:8899", want: "localhost:8899"},
		{url: "::not a url", want: "unknown"},
		{url: "", want: "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EndpointLabel(tt.url), tt.url)
	}
}
