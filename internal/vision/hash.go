package vision

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// HashBits is the length of every hash produced by DifferenceHasher.
const HashBits = 64

// DifferenceHasher produces a 64-bit difference hash rendered as a string of
// '0' and '1' characters, so hashes of equal length compare bit-for-bit.
type DifferenceHasher struct{}

func (DifferenceHasher) Hash(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("hash frame: nil image")
	}
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("hash frame: %w", err)
	}
	return fmt.Sprintf("%0*b", HashBits, h.GetHash()), nil
}
