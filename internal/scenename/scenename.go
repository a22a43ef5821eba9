// Package scenename normalizes show and release names the way scene
// groups and indexers spell them.
package scenename

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	badChars = strings.NewReplacer(
		",", "", ":", "", "(", "", ")", "", "!", "", "?", "",
		"’", "", "'", "",
	)
	separatorRegex    = regexp.MustCompile(`[- /]+`)
	multipleDotsRegex = regexp.MustCompile(`\.+`)
	keySeparatorRegex = regexp.MustCompile(`[. -]`)
)

// Sanitize converts a show name into its dotted scene form, e.g.
// "Marvel's Agents of S.H.I.E.L.D." becomes "Marvels.Agents.of.S.H.I.E.L.D".
func Sanitize(name string) string {
	if name == "" {
		return ""
	}

	name = badChars.Replace(name)
	name = strings.ReplaceAll(name, "&", "and")
	name = separatorRegex.ReplaceAllString(name, ".")
	name = multipleDotsRegex.ReplaceAllString(name, ".")
	return strings.TrimSuffix(name, ".")
}

// FullSanitize converts a name into the key used by the name cache:
// lowercase, accent-free, with dots and dashes turned into single spaces.
// FullSanitize(FullSanitize(s)) == FullSanitize(s) for every s.
func FullSanitize(name string) string {
	// Lowercase before folding: some uppercase runes lowercase to a base
	// letter plus a combining mark.
	name = StripAccents(strings.ToLower(name))
	name = keySeparatorRegex.ReplaceAllString(Sanitize(name), " ")
	return strings.TrimSpace(name)
}

// StripAccents removes combining marks, so "Pokémon" becomes "Pokemon".
func StripAccents(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, name)
	if err != nil {
		return name
	}
	return out
}
