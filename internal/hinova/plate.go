package hinova

import (
	"strings"
	"unicode"
)

// MercosulPlate converts a plate in the old Brazilian format to the Mercosul
// one: ABC1234 becomes ABC1C34. The second digit found is replaced by the
// letter at that position of the alphabet (0 is A). Whitespace is removed
// and the result is upper-cased. Plates with fewer than two digits are
// returned normalized but otherwise unchanged.
func MercosulPlate(plate string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, plate)

	out := []rune(cleaned)
	digits := 0
	for i, r := range out {
		if r < '0' || r > '9' {
			continue
		}
		digits++
		if digits == 2 {
			out[i] = 'A' + (r - '0')
			break
		}
	}
	return string(out)
}
