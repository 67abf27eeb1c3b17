package domain

import "errors"

var (
	// ErrUpstreamUnavailable is returned when the hosted image API cannot be
	// reached and no cached data exists to fall back on
	ErrUpstreamUnavailable = errors.New("upstream image API unavailable")

	// ErrAssetNotFound is returned when an asset is not found
	ErrAssetNotFound = errors.New("asset not found")
)
