package sourcify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

const metadataJSON = `{
	"output": {"abi": [{"type":"function","name":"transfer","inputs":[],"outputs":[]}]},
	"settings": {"compilationTarget": {"contracts/Token.sol": "Token"}}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{Endpoint: server.URL})
}

func TestMetadataFullMatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		expected := fmt.Sprintf("/contracts/full_match/1/%s/metadata.json", testAddress.Hex())
		require.Equal(t, expected, r.URL.Path)
		fmt.Fprint(w, metadataJSON)
	})

	result, err := client.Metadata(context.Background(), 1, testAddress)
	require.NoError(t, err)
	assert.Equal(t, "Token", result.Name)
	assert.False(t, result.Partial)
	assert.Contains(t, result.AbiJSON, `"transfer"`)
}

func TestMetadataPartialMatchFallback(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if len(paths) == 1 {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, metadataJSON)
	})

	result, err := client.Metadata(context.Background(), 137, testAddress)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "/full_match/137/")
	assert.Contains(t, paths[1], "/partial_match/137/")
}

func TestMetadataNotVerified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.Metadata(context.Background(), 1, testAddress)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetadataServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Metadata(context.Background(), 1, testAddress)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMetadataMissingABI(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"output":{},"settings":{}}`)
	})

	_, err := client.Metadata(context.Background(), 1, testAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ABI")
}
