package match

import (
	"fmt"

	"fireshot/models"

	"github.com/corona10/goimagehash"
)

// Accounts returns the candidates closest to the screenshot hash: those tied
// at the minimum distance, provided that distance is below threshold. An
// empty slice means the screenshot is unknown. Candidates are not modified.
func Accounts(shot *goimagehash.ImageHash, candidates []models.AccountDescriptor, threshold int) ([]models.AccountDescriptor, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	dists := make([]int, len(candidates))
	best := -1
	for i, c := range candidates {
		d, err := Distance(shot, c.Image.Hash)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", c.ID, err)
		}
		dists[i] = d
		if best < 0 || d < best {
			best = d
		}
	}
	if best >= threshold {
		return nil, nil
	}
	var out []models.AccountDescriptor
	for i, c := range candidates {
		if dists[i] == best {
			out = append(out, c)
		}
	}
	return out, nil
}
