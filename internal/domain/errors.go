package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnknownSport = errors.New("unknown sport")
	ErrDecode       = errors.New("decode failed")
	ErrStale        = errors.New("stale")
	ErrNoFallback   = errors.New("no usable fallback")
	ErrContextDone  = errors.New("context cancelled")
)
