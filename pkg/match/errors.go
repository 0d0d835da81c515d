package match

import "errors"

var (
	// ErrNoBalances is returned when resolving against an empty balance list.
	ErrNoBalances = errors.New("no balances to resolve")
	// ErrIncompatibleHash is returned when two hashes were not produced by the
	// same algorithm or do not have the same bit length.
	ErrIncompatibleHash = errors.New("incompatible image hashes")
	// ErrUnknownAlgorithm is returned for an unsupported hash algorithm name.
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
)
