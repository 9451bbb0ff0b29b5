// Package classify infers COAC attributes (year, category, competition
// phase) from free-text video titles and descriptions using keyword
// heuristics. Everything here is pure and deterministic.
package classify

import (
	"regexp"
	"strings"

	"github.com/carnavalix/carnavalplay/internal/db"
)

var yearRe = regexp.MustCompile(`\b(20\d{2}|199\d)\b`)

// categoryKeywords is ordered: the first keyword found in the text
// wins. Order matters for titles naming several categories.
var categoryKeywords = []string{
	db.CategoryChirigota,
	db.CategoryComparsa,
	db.CategoryCoro,
	db.CategoryCuarteto,
	db.CategoryRomancero,
}

// phaseKeywords maps keyword → canonical phase, checked in order.
// "calle" is a looser form of "callejera" and maps to the same phase.
var phaseKeywords = []struct {
	keyword string
	phase   string
}{
	{"final", db.PhaseFinal},
	{"semifinal", db.PhaseSemifinal},
	{"cuartos", db.PhaseCuartos},
	{"preliminar", db.PhasePreliminar},
	{"callejera", db.PhaseCallejera},
	{"calle", db.PhaseCallejera},
}

// Result holds the attributes inferred from a title/description pair.
// Nil fields mean the text gave no signal.
type Result struct {
	Year        *int
	Category    *string
	Phase       *string
	ContentType string
}

// Classify infers year, category, phase and content type from a video's
// title and description.
func Classify(title, description string) Result {
	text := strings.ToLower(title + " " + description)

	result := Result{ContentType: db.ContentTypeCOAC}

	if m := yearRe.FindString(text); m != "" {
		year := parseYear(m)
		result.Year = &year
	}

	for _, kw := range categoryKeywords {
		if strings.Contains(text, kw) {
			category := kw
			result.Category = &category
			break
		}
	}

	for _, pk := range phaseKeywords {
		if strings.Contains(text, pk.keyword) {
			phase := pk.phase
			result.Phase = &phase
			if phase == db.PhaseCallejera {
				result.ContentType = db.ContentTypeCallejera
			}
			break
		}
	}

	return result
}

// parseYear converts a matched 4-digit token. The regexp guarantees
// digits only.
func parseYear(s string) int {
	year := 0
	for _, c := range s {
		year = year*10 + int(c-'0')
	}
	return year
}
