package domain

import (
	"fmt"
	"strings"
)

// Sport tags one Sport.fun market (one set of contracts, one token universe).
type Sport string

const (
	SportNFL    Sport = "nfl"
	SportSoccer Sport = "soccer"
)

// ParseSport normalises a user-supplied sport tag. "football" is accepted as
// an alias for soccer.
func ParseSport(s string) (Sport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nfl":
		return SportNFL, nil
	case "soccer", "football":
		return SportSoccer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSport, s)
	}
}

func (s Sport) String() string { return string(s) }
