// Package secrets masks credential values for display.
package secrets

// Masking configures MaskValue.
type Masking struct {
	// PartialShowChars is the length of the prefix left visible.
	PartialShowChars int
	Replacement      string
}

// DefaultMasking shows the first four characters of a token.
func DefaultMasking() *Masking {
	return &Masking{PartialShowChars: 4, Replacement: "****"}
}

// MaskValue masks a sensitive value. A nil config uses DefaultMasking.
func MaskValue(value string, config *Masking) string {
	if config == nil {
		config = DefaultMasking()
	}
	return partialMask(value, config.PartialShowChars, config.Replacement)
}

// partialMask shows the first N characters and masks the rest. Values not
// longer than twice N are fully masked so most of a short secret never shows.
func partialMask(value string, showChars int, replacement string) string {
	if replacement == "" {
		replacement = "***"
	}
	if showChars <= 0 || len(value) <= 2*showChars {
		return replacement
	}
	return value[:showChars] + replacement
}
