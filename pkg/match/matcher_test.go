package match

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"fireshot/models"

	"github.com/corona10/goimagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashWithDistance returns an encoded perception hash exactly d bits away
// from zero.
func hashWithDistance(d int) string {
	var bits uint64
	for i := 0; i < d; i++ {
		bits |= 1 << uint(i)
	}
	return EncodeHash(goimagehash.NewImageHash(bits, goimagehash.PHash))
}

func account(id int64, d int, rel *int) models.AccountDescriptor {
	return models.AccountDescriptor{
		ID:           id,
		Name:         "acct",
		Image:        models.ImageRef{Hash: hashWithDistance(d)},
		Relationship: rel,
	}
}

func intp(v int) *int { return &v }

var zero = goimagehash.NewImageHash(0, goimagehash.PHash)

func TestAccountsTiedBelowThreshold(t *testing.T) {
	cands := []models.AccountDescriptor{account(1, 3, intp(1)), account(2, 3, intp(1))}
	got, err := Accounts(zero, cands, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, SameRelationship(got))
}

func TestAccountsOnlyBest(t *testing.T) {
	cands := []models.AccountDescriptor{account(1, 3, nil), account(2, 7, nil)}
	got, err := Accounts(zero, cands, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestAccountsEmpty(t *testing.T) {
	got, err := Accounts(zero, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAccountsBestNotUnderThreshold(t *testing.T) {
	cands := []models.AccountDescriptor{account(1, 5, nil), account(2, 5, nil), account(3, 9, nil)}
	got, err := Accounts(zero, cands, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAccountsIdempotent(t *testing.T) {
	cands := []models.AccountDescriptor{account(1, 2, intp(1)), account(2, 4, nil), account(3, 2, intp(2))}
	before := append([]models.AccountDescriptor(nil), cands...)
	first, err := Accounts(zero, cands, 10)
	require.NoError(t, err)
	second, err := Accounts(zero, cands, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, before, cands)
	assert.False(t, SameRelationship(first))
}

func TestAccountsIncompatibleKind(t *testing.T) {
	other := models.AccountDescriptor{ID: 9, Image: models.ImageRef{
		Hash: EncodeHash(goimagehash.NewImageHash(0, goimagehash.AHash)),
	}}
	_, err := Accounts(zero, []models.AccountDescriptor{account(1, 0, nil), other}, 5)
	assert.ErrorIs(t, err, ErrIncompatibleHash)
}

func TestDecodeHashRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "p", "p:abc", "x:0000000000000000", "p:00000000000000000000000000000000", "p:zzzzzzzzzzzzzzzz"} {
		_, err := DecodeHash(s)
		assert.ErrorIs(t, err, ErrIncompatibleHash, s)
	}
}

func TestEncodeDecode(t *testing.T) {
	h := goimagehash.NewImageHash(0xdeadbeef01234567, goimagehash.DHash)
	s := EncodeHash(h)
	assert.Equal(t, "d:deadbeef01234567", s)
	back, err := DecodeHash(s)
	require.NoError(t, err)
	assert.Equal(t, h.GetHash(), back.GetHash())
	assert.Equal(t, goimagehash.DHash, back.GetKind())
}

func TestHasherBytesMatchImage(t *testing.T) {
	h, err := NewHasher("perception")
	require.NoError(t, err)

	img := checker(64, 64)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	fromBytes, err := h.Hash(buf.Bytes())
	require.NoError(t, err)
	fromImage, err := h.HashImage(img)
	require.NoError(t, err)

	d, err := Distance(fromBytes, EncodeHash(fromImage))
	require.NoError(t, err)
	assert.Equal(t, 0, d)
}

func TestHasherRejectsGarbage(t *testing.T) {
	h, err := NewHasher("average")
	require.NoError(t, err)
	_, err = h.Hash([]byte("not an image"))
	assert.Error(t, err)
}

func TestNewHasherUnknown(t *testing.T) {
	_, err := NewHasher("sha256")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	h, err := NewHasher("Difference")
	require.NoError(t, err)
	assert.Equal(t, Difference, h.Algorithm())
}

func checker(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/16+y/8)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 230})
			} else {
				img.SetGray(x, y, color.Gray{Y: 20})
			}
		}
	}
	return img
}
