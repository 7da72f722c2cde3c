package domain

import "unicode/utf8"

const (
	// MaxSupply is the number of tokens in the pool. Token ids are 1-based.
	MaxSupply = 100

	// BitmapCapacity is the width of the availability bitmaps. Only the
	// first MaxSupply bits are ever set; the headroom keeps the storage
	// layout fixed if the pool is ever enlarged.
	BitmapCapacity = 256

	// MinObservationLength and MaxObservationLength bound the accepted
	// observation text, in characters.
	MinObservationLength = 1
	MaxObservationLength = 250
)

// ValidObservationText reports whether the text length, counted in
// characters rather than bytes, is within bounds.
func ValidObservationText(text string) bool {
	n := utf8.RuneCountInString(text)
	return n >= MinObservationLength && n <= MaxObservationLength
}
