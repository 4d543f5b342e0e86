package metadata

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

const contract = "0xAbC0000000000000000000000000000000000001"

type staticURIs struct {
	uri   string
	err   error
	calls atomic.Int32
}

func (s *staticURIs) TokenURI(context.Context, string, string) (string, error) {
	s.calls.Add(1)
	return s.uri, s.err
}

func newTestResolver(t *testing.T, cfg Config, uris URIReader) (*Resolver, *FileCache) {
	t.Helper()
	fc := NewFileCache(t.TempDir())
	r := NewResolver(cfg, fc, uris, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, fc
}

func TestExpandID(t *testing.T) {
	got, err := ExpandID("https://x/{id}.json", "255")
	require.NoError(t, err)
	require.Equal(t, "https://x/"+strings.Repeat("0", 62)+"ff.json", got)

	got, err = ExpandID("https://x/7.json", "7")
	require.NoError(t, err)
	require.Equal(t, "https://x/7.json", got)

	_, err = ExpandID("https://x/{id}", "abc")
	require.Error(t, err)
}

func TestGetMetadataHTTPAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, strings.Repeat("0", 63)+"7"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":" Josh Allen ","image":"ipfs://ipfs/QmImg","attributes":[{"trait_type":"Position","value":"QB"}]}`))
	}))
	defer srv.Close()

	r, _ := newTestResolver(t, Config{URITemplate: srv.URL + "/{id}", IPFSGateway: "https://gw.example/ipfs/"}, nil)
	md, err := r.GetMetadata(context.Background(), contract, "7")
	require.NoError(t, err)
	require.Equal(t, "Josh Allen", md.Name)
	require.Equal(t, "https://gw.example/ipfs/QmImg", md.Image)
	pos, ok := ParseAttributes(md.Attributes).Position()
	require.True(t, ok)
	require.Equal(t, "QB", pos)

	_, err = r.GetMetadata(context.Background(), contract, "7")
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())
}

func TestGetMetadataDataURI(t *testing.T) {
	doc := `{"name":"Bukayo Saka","attributes":{"club":"Arsenal"}}`
	uris := &staticURIs{uri: "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(doc))}
	r, _ := newTestResolver(t, Config{}, uris)

	md, err := r.GetMetadata(context.Background(), contract, "11")
	require.NoError(t, err)
	require.Equal(t, "Bukayo Saka", md.Name)
	team, ok := ParseAttributes(md.Attributes).Team()
	require.True(t, ok)
	require.Equal(t, "Arsenal", team)

	plain := &staticURIs{uri: "data:application/json," + `%7B%22name%22%3A%22Plain%22%7D`}
	r2, _ := newTestResolver(t, Config{}, plain)
	md, err = r2.GetMetadata(context.Background(), contract, "12")
	require.NoError(t, err)
	require.Equal(t, "Plain", md.Name)
}

func TestGetMetadataIPFSGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/QmDoc/3.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Gateway"}`))
	}))
	defer srv.Close()

	uris := &staticURIs{uri: "ipfs://QmDoc/3.json"}
	r, _ := newTestResolver(t, Config{IPFSGateway: srv.URL + "/ipfs/"}, uris)
	md, err := r.GetMetadata(context.Background(), contract, "3")
	require.NoError(t, err)
	require.Equal(t, "Gateway", md.Name)
}

func TestGetMetadataFailureKeepsLastAndBumpsTimestamp(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"name":"First"}`))
	}))
	defer srv.Close()

	now := time.UnixMilli(1_700_000_000_000)
	r, fc := newTestResolver(t, Config{URITemplate: srv.URL + "/{id}", TTL: time.Hour}, nil)
	r.now = func() time.Time { return now }

	_, err := r.GetMetadata(context.Background(), contract, "5")
	require.NoError(t, err)

	fail.Store(true)
	now = now.Add(2 * time.Hour)
	md, err := r.GetMetadata(context.Background(), contract, "5")
	require.Error(t, err)
	require.NotNil(t, md)
	require.Equal(t, "First", md.Name)

	entry, err := fc.Get(context.Background(), contract, "5")
	require.NoError(t, err)
	require.Equal(t, now.UnixMilli(), entry.UpdatedAt)
	require.Equal(t, "First", entry.Metadata.Name)

	// The bumped timestamp suppresses another attempt within the TTL.
	md, err = r.GetMetadata(context.Background(), contract, "5")
	require.NoError(t, err)
	require.Equal(t, "First", md.Name)
}

func TestGetMetadataNeverResolvedCachesNil(t *testing.T) {
	uris := &staticURIs{err: errors.New("execution reverted")}
	r, _ := newTestResolver(t, Config{}, uris)

	md, err := r.GetMetadata(context.Background(), contract, "9")
	require.Error(t, err)
	require.Nil(t, md)

	md, err = r.GetMetadata(context.Background(), contract, "9")
	require.NoError(t, err)
	require.Nil(t, md)
	require.EqualValues(t, 1, uris.calls.Load())
}

func TestGetMetadataFingerprintChangeInvalidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v2/") {
			_, _ = w.Write([]byte(`{"name":"New"}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"Old"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fc := NewFileCache(dir)
	r := NewResolver(Config{URITemplate: srv.URL + "/v1/{id}"}, fc, nil, logger)
	md, err := r.GetMetadata(context.Background(), contract, "1")
	require.NoError(t, err)
	require.Equal(t, "Old", md.Name)
	require.NoError(t, fc.Flush(context.Background()))

	reopened := NewFileCache(dir)
	r2 := NewResolver(Config{URITemplate: srv.URL + "/v2/{id}"}, reopened, nil, logger)
	md, err = r2.GetMetadata(context.Background(), contract, "1")
	require.NoError(t, err)
	require.Equal(t, "New", md.Name)
}

func TestCachedDoesNotFetch(t *testing.T) {
	uris := &staticURIs{uri: "https://unreachable.invalid/x"}
	r, fc := newTestResolver(t, Config{}, uris)
	require.Nil(t, r.Cached(context.Background(), contract, "4"))

	require.NoError(t, fc.Set(context.Background(), contract, "4", domain.MetadataCacheEntry{
		Metadata: &domain.TokenMetadata{Name: "Peek"},
	}))
	md := r.Cached(context.Background(), contract, "4")
	require.NotNil(t, md)
	require.Equal(t, "Peek", md.Name)
	require.Zero(t, uris.calls.Load())
}
