package metadata

import "strings"

// Override is one manual display-name override.
type Override struct {
	Contract string
	TokenID  string
	Name     string
}

// Overrides is the manual name table, keyed by contract and token id.
type Overrides struct {
	names map[string]string
}

// NewOverrides builds the table. Later entries win.
func NewOverrides(entries []Override) *Overrides {
	o := &Overrides{names: make(map[string]string, len(entries))}
	for _, e := range entries {
		if name := strings.TrimSpace(e.Name); name != "" {
			o.names[overrideKey(e.Contract, e.TokenID)] = name
		}
	}
	return o
}

// Lookup returns the override name for (contract, tokenID).
func (o *Overrides) Lookup(contract, tokenID string) (string, bool) {
	if o == nil {
		return "", false
	}
	name, ok := o.names[overrideKey(contract, tokenID)]
	return name, ok
}

func overrideKey(contract, tokenID string) string {
	return strings.ToLower(strings.TrimSpace(contract)) + ":" + strings.TrimSpace(tokenID)
}
