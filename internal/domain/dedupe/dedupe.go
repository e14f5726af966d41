// Package dedupe derives stable identity keys for places so that records
// describing the same real-world location converge to a single entry no
// matter which provider they arrived from.
package dedupe

import (
	"regexp"
	"strings"
	"unicode"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/placedex/internal/domain/geo"
)

const (
	// DefaultPrecision is the geohash precision used for dedupe keys.
	// Precision 7 yields ~150 m cells.
	DefaultPrecision = 7

	// DefaultDistanceThresholdM is the maximum distance between two points
	// for the fuzzy comparator to consider them the same place.
	DefaultDistanceThresholdM = 150.0

	// nameSimilarityThreshold is the minimum normalized-name similarity for
	// the fuzzy comparator.
	nameSimilarityThreshold = 0.8
)

var (
	parenRe      = regexp.MustCompile(`\([^)]*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// stripMarks removes combining diacritical marks after NFD decomposition.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	// letterFolds maps letters that do not decompose into base + combining
	// mark, such as the Vietnamese đ.
	letterFolds = strings.NewReplacer(
		"đ", "d", "Đ", "d",
		"ø", "o", "Ø", "o",
		"ł", "l", "Ł", "l",
		"ß", "ss",
	)
)

// NormalizeName folds a place name into its canonical comparison form:
// diacritics stripped, lowercased, parenthetical text dropped,
// non-alphanumerics removed, whitespace collapsed.
func NormalizeName(name string) string {
	s := parenRe.ReplaceAllString(name, " ")

	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = letterFolds.Replace(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}

// NormalizeQuery folds free-form query text for cache keying: diacritics
// stripped, lowercased, whitespace collapsed. Unlike NormalizeName it keeps
// punctuation and parentheticals, so queries that differ only in those stay
// distinct.
func NormalizeQuery(query string) string {
	s := query
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = letterFolds.Replace(s)
	s = strings.ToLower(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Key computes the dedupe key for a place: normalized name + "_" + geohash
// cell of its coordinates. Two records with the same key are the same place.
func Key(name string, lat, lng float64, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return NormalizeName(name) + "_" + geohash.EncodeWithPrecision(lat, lng, precision)
}

// Cell returns the geohash cell of a point at the given precision.
func Cell(lat, lng float64, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return geohash.EncodeWithPrecision(lat, lng, precision)
}

// AreDuplicates reports whether two places describe the same real-world
// location. A strict key match wins immediately; otherwise both the
// normalized-name similarity (>= 0.8) and the great-circle distance
// (<= distThresholdM) must hold. Used at insert time to catch near-miss
// geocoding noise between providers.
func AreDuplicates(aName string, aLat, aLng float64, bName string, bLat, bLng float64, distThresholdM float64) bool {
	if distThresholdM <= 0 {
		distThresholdM = DefaultDistanceThresholdM
	}

	if Key(aName, aLat, aLng, DefaultPrecision) == Key(bName, bLat, bLng, DefaultPrecision) {
		return true
	}

	sim := strutil.Similarity(NormalizeName(aName), NormalizeName(bName), metrics.NewLevenshtein())
	if sim < nameSimilarityThreshold {
		return false
	}

	return geo.Haversine(aLat, aLng, bLat, bLng) <= distThresholdM
}
