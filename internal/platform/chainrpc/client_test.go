package chainrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newNode starts a JSON-RPC server whose first failures responses fail with
// status, then answers eth_blockNumber with 0x10.
func newNode(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			http.Error(w, "slow down", status)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"0x10"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func dialTest(t *testing.T, url string, attempts int) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		URL:         url,
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCall_RetriesRateLimit(t *testing.T) {
	srv, calls := newNode(t, 2, http.StatusTooManyRequests)
	c := dialTest(t, srv.URL, 4)

	var n hexutil.Uint64
	require.NoError(t, c.Call(context.Background(), &n, "eth_blockNumber"))
	require.EqualValues(t, 16, n)
	require.EqualValues(t, 3, calls.Load())
}

func TestCall_GivesUpAfterMaxAttempts(t *testing.T) {
	srv, calls := newNode(t, 10, http.StatusBadGateway)
	c := dialTest(t, srv.URL, 3)

	var n hexutil.Uint64
	err := c.Call(context.Background(), &n, "eth_blockNumber")
	require.Error(t, err)
	require.EqualValues(t, 3, calls.Load())
}

func TestCall_NonRetryableFailsFast(t *testing.T) {
	srv, calls := newNode(t, 10, http.StatusBadRequest)
	c := dialTest(t, srv.URL, 5)

	var n hexutil.Uint64
	require.Error(t, c.Call(context.Background(), &n, "eth_blockNumber"))
	require.EqualValues(t, 1, calls.Load())
}

func TestIsRetryable(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{gethrpc.HTTPError{StatusCode: 429}, true},
		{gethrpc.HTTPError{StatusCode: 408}, true},
		{gethrpc.HTTPError{StatusCode: 503}, true},
		{gethrpc.HTTPError{StatusCode: 400}, false},
		{errors.New("Your app has exceeded its compute units per second capacity"), true},
		{errors.New("execution reverted"), false},
		{nil, false},
	} {
		require.Equal(t, tc.want, IsRetryable(tc.err), "%v", tc.err)
	}
}
