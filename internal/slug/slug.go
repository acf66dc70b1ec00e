// Package slug turns free-text names into URL-safe identifiers.
//
// HOW A SLUG IS BUILT:
//
//	"  Łódź Reading Room! " → transliterate → "Lodz Reading Room!"
//	                        → lowercase     → "lodz reading room!"
//	                        → collapse      → "lodz-reading-room-"
//	                        → trim hyphens  → "lodz-reading-room"
//
// With a uniqueness suffix, an xid is appended: "lodz-reading-room-cv37rs3pp9olc6atsptg".
// xids are lowercase base32, so the suffix never breaks the [a-z0-9-] alphabet.
package slug

import (
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
	"github.com/rs/xid"
)

// fallback is used when nothing alphanumeric survives transliteration
// (a name made only of punctuation or emoji).
const fallback = "item"

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Make builds a slug from s. When unique is true a random, time-ordered
// suffix is appended so two calls with the same input never collide.
func Make(s string, unique bool) string {
	base := unidecode.Unidecode(strings.ToLower(strings.TrimSpace(s)))
	base = strings.ToLower(base)
	base = nonAlnum.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = fallback
	}

	if unique {
		return base + "-" + xid.New().String()
	}
	return base
}
