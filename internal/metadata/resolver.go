// Package metadata resolves per-token ERC-1155 metadata. Results are cached
// per contract and token with the configuration fingerprint they were
// resolved under; every attempt refreshes the entry's timestamp so a failing
// token is not retried on every build.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

const maxDocumentBytes = 1 << 20

// URIReader reads the metadata URI of a token from its contract.
type URIReader interface {
	TokenURI(ctx context.Context, contract, tokenID string) (string, error)
}

// Config controls URI resolution.
type Config struct {
	URITemplate    string
	IPFSGateway    string
	ArweaveGateway string
	FetchTimeout   time.Duration
	TTL            time.Duration
}

// Resolver implements GetMetadata.
type Resolver struct {
	cfg         Config
	cache       domain.MetadataCache
	uris        URIReader
	httpClient  *http.Client
	fingerprint string
	logger      *slog.Logger
	now         func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config, cache domain.MetadataCache, uris URIReader, logger *slog.Logger) *Resolver {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 8 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.IPFSGateway == "" {
		cfg.IPFSGateway = "https://ipfs.io/ipfs/"
	}
	if cfg.ArweaveGateway == "" {
		cfg.ArweaveGateway = "https://arweave.net/"
	}
	return &Resolver{
		cfg:         cfg,
		cache:       cache,
		uris:        uris,
		httpClient:  &http.Client{},
		fingerprint: Fingerprint(cfg),
		logger:      logger.With(slog.String("component", "metadata")),
		now:         time.Now,
	}
}

// Fingerprint identifies the URI configuration a cache entry was resolved
// under. Changing the template or a gateway invalidates every entry.
func Fingerprint(cfg Config) string {
	h := crypto.Keccak256Hash([]byte(cfg.URITemplate + "\x00" + cfg.IPFSGateway + "\x00" + cfg.ArweaveGateway))
	return h.Hex()[2:18]
}

// GetMetadata returns the metadata of (contract, tokenID). On failure it
// returns the last known metadata (possibly nil) together with the error;
// callers treat metadata as best effort.
func (r *Resolver) GetMetadata(ctx context.Context, contract, tokenID string) (*domain.TokenMetadata, error) {
	entry, err := r.cache.Get(ctx, contract, tokenID)
	hasEntry := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.WarnContext(ctx, "metadata cache read failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}

	sameConfig := hasEntry && entry.Fingerprint == r.fingerprint
	if sameConfig && r.now().Sub(time.UnixMilli(entry.UpdatedAt)) < r.cfg.TTL {
		return entry.Metadata, nil
	}
	last := entry.Metadata

	// The resolved URI is only reusable under the configuration it came from.
	if sameConfig && entry.URI != "" {
		md, err := r.fetchDocument(ctx, entry.URI)
		if err == nil {
			r.remember(ctx, contract, tokenID, entry.URI, md)
			return md, nil
		}
		r.logger.DebugContext(ctx, "cached uri failed, re-reading contract",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}

	uri, err := r.tokenURI(ctx, contract, tokenID)
	if err != nil {
		r.remember(ctx, contract, tokenID, entry.URI, last)
		return last, fmt.Errorf("metadata: uri %s: %w", tokenID, err)
	}
	md, err := r.fetchDocument(ctx, uri)
	if err != nil {
		r.remember(ctx, contract, tokenID, uri, last)
		return last, fmt.Errorf("metadata: fetch %s: %w", tokenID, err)
	}
	r.remember(ctx, contract, tokenID, uri, md)
	return md, nil
}

// Cached returns whatever metadata is cached for (contract, tokenID) without
// touching the network.
func (r *Resolver) Cached(ctx context.Context, contract, tokenID string) *domain.TokenMetadata {
	entry, err := r.cache.Get(ctx, contract, tokenID)
	if err != nil {
		return nil
	}
	return entry.Metadata
}

func (r *Resolver) remember(ctx context.Context, contract, tokenID, uri string, md *domain.TokenMetadata) {
	err := r.cache.Set(ctx, contract, tokenID, domain.MetadataCacheEntry{
		URI:         uri,
		Metadata:    md,
		Fingerprint: r.fingerprint,
		UpdatedAt:   r.now().UnixMilli(),
	})
	if err != nil {
		r.logger.WarnContext(ctx, "metadata cache write failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
}

// tokenURI returns the configured template or the contract's uri(), with the
// ERC-1155 {id} placeholder substituted.
func (r *Resolver) tokenURI(ctx context.Context, contract, tokenID string) (string, error) {
	tmpl := r.cfg.URITemplate
	if tmpl == "" {
		if r.uris == nil {
			return "", errors.New("no uri source configured")
		}
		var err error
		tmpl, err = r.uris.TokenURI(ctx, contract, tokenID)
		if err != nil {
			return "", err
		}
	}
	tmpl = strings.TrimSpace(tmpl)
	if tmpl == "" {
		return "", errors.New("empty uri")
	}
	return ExpandID(tmpl, tokenID)
}

// ExpandID substitutes the ERC-1155 {id} placeholder with the 64-character
// lowercase hex token id.
func ExpandID(uri, tokenID string) (string, error) {
	if !strings.Contains(uri, "{id}") {
		return uri, nil
	}
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("bad token id %q", tokenID)
	}
	return strings.ReplaceAll(uri, "{id}", fmt.Sprintf("%064x", id)), nil
}

// fetchDocument resolves uri to a metadata document.
func (r *Resolver) fetchDocument(ctx context.Context, uri string) (*domain.TokenMetadata, error) {
	if strings.HasPrefix(uri, "data:") {
		body, err := decodeDataURI(uri)
		if err != nil {
			return nil, err
		}
		return r.parseDocument(body)
	}

	target, err := r.gatewayURL(uri)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, target)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return r.parseDocument(body)
}

// gatewayURL rewrites ipfs:// and ar:// URIs to HTTP gateways and passes
// http(s) through.
func (r *Resolver) gatewayURL(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		path := strings.TrimPrefix(uri, "ipfs://")
		path = strings.TrimPrefix(path, "ipfs/")
		return joinGateway(r.cfg.IPFSGateway, path), nil
	case strings.HasPrefix(uri, "ar://"):
		return joinGateway(r.cfg.ArweaveGateway, strings.TrimPrefix(uri, "ar://")), nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri, nil
	default:
		return "", fmt.Errorf("unsupported uri scheme: %.32s", uri)
	}
}

func joinGateway(gateway, path string) string {
	return strings.TrimRight(gateway, "/") + "/" + strings.TrimLeft(path, "/")
}

// decodeDataURI returns the payload of a data: URI, base64 or percent
// encoded.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data uri")
	}
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data uri base64: %w", err)
		}
		return b, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return []byte(payload), nil
	}
	return []byte(s), nil
}

func (r *Resolver) parseDocument(body []byte) (*domain.TokenMetadata, error) {
	var md domain.TokenMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	md.Name = strings.TrimSpace(md.Name)
	if md.Image != "" {
		if img, err := r.gatewayURL(md.Image); err == nil {
			md.Image = img
		}
	}
	return &md, nil
}

type flusher interface {
	Flush(ctx context.Context) error
}

// Flush persists pending cache writes when the cache buffers them.
func (r *Resolver) Flush(ctx context.Context) error {
	if f, ok := r.cache.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return fmt.Errorf("metadata: flush: %w", err)
		}
	}
	return nil
}
