package match

import (
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// Algorithm names a perceptual hash function.
type Algorithm string

const (
	Average    Algorithm = "average"
	Difference Algorithm = "difference"
	Perception Algorithm = "perception"
)

// hashHexLen is the encoded length of a 64-bit hash.
const hashHexLen = 16

var kindPrefix = map[goimagehash.Kind]string{
	goimagehash.AHash: "a",
	goimagehash.DHash: "d",
	goimagehash.PHash: "p",
}

// Hasher computes perceptual hashes with the process-wide algorithm.
type Hasher struct {
	alg Algorithm
}

// NewHasher returns a Hasher for alg.
func NewHasher(alg string) (*Hasher, error) {
	switch a := Algorithm(strings.ToLower(alg)); a {
	case Average, Difference, Perception:
		return &Hasher{alg: a}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// Algorithm returns the configured algorithm.
func (h *Hasher) Algorithm() Algorithm { return h.alg }

// Hash decodes screenshot bytes and hashes the image.
func (h *Hasher) Hash(data []byte) (*goimagehash.ImageHash, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return h.HashImage(img)
}

// HashImage hashes an already decoded image.
func (h *Hasher) HashImage(img image.Image) (*goimagehash.ImageHash, error) {
	switch h.alg {
	case Average:
		return goimagehash.AverageHash(img)
	case Difference:
		return goimagehash.DifferenceHash(img)
	default:
		return goimagehash.PerceptionHash(img)
	}
}

// EncodeHash renders a hash as "<kind>:<16 hex digits>" for persistence.
func EncodeHash(h *goimagehash.ImageHash) string {
	return fmt.Sprintf("%s:%016x", kindPrefix[h.GetKind()], h.GetHash())
}

// DecodeHash parses the EncodeHash form. Anything else, including hashes of
// another bit length, is rejected.
func DecodeHash(s string) (*goimagehash.ImageHash, error) {
	prefix, hexPart, ok := strings.Cut(s, ":")
	if !ok || len(hexPart) != hashHexLen {
		return nil, fmt.Errorf("%w: malformed hash %q", ErrIncompatibleHash, s)
	}
	var kind goimagehash.Kind
	found := false
	for k, p := range kindPrefix {
		if p == prefix {
			kind, found = k, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: unknown hash kind %q", ErrIncompatibleHash, prefix)
	}
	v, err := strconv.ParseUint(hexPart, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatibleHash, err)
	}
	return goimagehash.NewImageHash(v, kind), nil
}

// Distance is the Hamming distance between a screenshot hash and a stored one.
func Distance(shot *goimagehash.ImageHash, stored string) (int, error) {
	ref, err := DecodeHash(stored)
	if err != nil {
		return 0, err
	}
	if ref.GetKind() != shot.GetKind() {
		return 0, fmt.Errorf("%w: %s against %s", ErrIncompatibleHash, kindPrefix[shot.GetKind()], kindPrefix[ref.GetKind()])
	}
	d, err := shot.Distance(ref)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncompatibleHash, err)
	}
	return d, nil
}
