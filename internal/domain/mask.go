package domain

import "strings"

const maskPrefix = "XXXX-XXXX-XXXX-"

// MaskNumber renders an account or card number exposing only its last 4
// digits. Non-digit characters are ignored, so an already-masked value maps
// to itself. Inputs with fewer than 4 digits are fully masked.
func MaskNumber(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	if len(d) < 4 {
		return maskPrefix + "XXXX"
	}
	return maskPrefix + d[len(d)-4:]
}
