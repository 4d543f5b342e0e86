package metadata

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

type bagKind int

const (
	bagEmpty bagKind = iota
	bagList          // [{"trait_type": "...", "value": ...}, ...]
	bagMap           // {"key": value, ...}
)

type attrPair struct {
	key   string
	value string
}

// Attributes is a parsed metadata attribute bag. Both the OpenSea trait list
// and the plain object form normalise to ordered key/value pairs.
type Attributes struct {
	kind  bagKind
	pairs []attrPair
}

// ParseAttributes parses raw. Unknown shapes yield an empty bag.
func ParseAttributes(raw json.RawMessage) Attributes {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Attributes{}
	}

	switch raw[0] {
	case '[':
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Attributes{}
		}
		bag := Attributes{kind: bagList}
		for _, item := range items {
			key := firstString(item, "trait_type", "traitType", "name", "key", "type")
			val, ok := scalar(item["value"])
			if key == "" || !ok {
				continue
			}
			bag.pairs = append(bag.pairs, attrPair{key: key, value: val})
		}
		return bag
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Attributes{}
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		bag := Attributes{kind: bagMap}
		for _, k := range keys {
			if val, ok := scalar(obj[k]); ok {
				bag.pairs = append(bag.pairs, attrPair{key: k, value: val})
			}
		}
		return bag
	default:
		return Attributes{}
	}
}

// keyMatch reports whether an attribute key satisfies a wanted name.
type keyMatch func(key, want string) bool

// matchPriority is tried in order; the first predicate that finds a non-empty
// value wins.
var matchPriority = []keyMatch{
	func(key, want string) bool { return key == want },
	strings.EqualFold,
	func(key, want string) bool {
		return strings.Contains(strings.ToLower(key), strings.ToLower(want))
	},
}

// Lookup returns the first non-empty value whose key matches one of wants,
// trying exact, then case-insensitive, then substring matches.
func (a Attributes) Lookup(wants ...string) (string, bool) {
	for _, match := range matchPriority {
		for _, want := range wants {
			for _, p := range a.pairs {
				if p.value != "" && match(p.key, want) {
					return p.value, true
				}
			}
		}
	}
	return "", false
}

// Len returns the number of usable pairs.
func (a Attributes) Len() int { return len(a.pairs) }

// Position extracts the player position.
func (a Attributes) Position() (string, bool) { return a.Lookup("position", "pos") }

// Team extracts the player's team or club.
func (a Attributes) Team() (string, bool) { return a.Lookup("team", "club") }

// Supply extracts the share supply.
func (a Attributes) Supply() (string, bool) { return a.Lookup("supply", "total_supply", "max_supply") }

func firstString(item map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if v, ok := scalar(item[k]); ok && v != "" {
			return v
		}
	}
	return ""
}

// scalar renders a JSON string, number or bool as a trimmed string.
func scalar(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case '{', '[':
		return "", false
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String(), true
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			if b {
				return "true", true
			}
			return "false", true
		}
		return "", false
	}
}
