package domain

import "encoding/json"

// TokenMetadata is the decoded ERC-1155 metadata document.
type TokenMetadata struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
}

// MetadataCacheEntry is the cached resolution state for one token. Metadata
// may be nil when no resolution has ever succeeded.
type MetadataCacheEntry struct {
	URI         string         `json:"uri,omitempty"`
	Metadata    *TokenMetadata `json:"metadata,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	UpdatedAt   int64          `json:"updatedAt"`
}

// FallbackPlayer is one record of the external fallback feed.
type FallbackPlayer struct {
	TokenID     string `json:"tokenId"`
	Name        string `json:"name,omitempty"`
	Position    string `json:"position,omitempty"`
	Team        string `json:"team,omitempty"`
	Supply      string `json:"supply,omitempty"`
	Image       string `json:"image,omitempty"`
	IsTradeable *bool  `json:"isTradeable,omitempty"`
}

// FallbackFeed is the external feed result for one sport.
type FallbackFeed struct {
	Source     string           `json:"source"`
	AgeSeconds int64            `json:"ageSeconds"`
	Players    []FallbackPlayer `json:"players"`
}

// ByTokenID indexes the feed by token id.
func (f *FallbackFeed) ByTokenID() map[string]FallbackPlayer {
	if f == nil {
		return map[string]FallbackPlayer{}
	}
	out := make(map[string]FallbackPlayer, len(f.Players))
	for _, p := range f.Players {
		if p.TokenID != "" {
			out[p.TokenID] = p
		}
	}
	return out
}
