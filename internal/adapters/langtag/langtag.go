// Package langtag implements LanguageTagger (spec.md §1 Non-goals:
// "language-detection heuristics beyond the port's interface") as a
// minimal deterministic stub rather than a production detector.
// SPEC_FULL.md §11 notes no pack example wires a language-identification
// library (no fastText/whatlanggo/cld3 binding appears in any example
// repo's go.mod), so this adapter is stdlib-only by necessity, not
// preference — see DESIGN.md.
package langtag

import (
	"context"
	"strings"
	"unicode"

	"github.com/vertigo15/docengine/internal/capabilities"
)

// Tagger is a script-based language stub: it buckets a chunk's runes into
// a handful of Unicode scripts and reports the dominant one as the
// "primary language", which is enough to exercise detected_languages /
// primary_language end to end (spec.md §4.7) without depending on a
// statistical model this workspace has no library for.
type Tagger struct{}

func New() *Tagger { return &Tagger{} }

// scriptLanguage maps a detected dominant script to the ISO-639-1-ish tag
// spec.md's Document.primary_language expects. Latin text is tagged "en"
// since this stub has no way to distinguish Latin-script languages from
// each other; that limitation is the entire reason this is a stub.
var scriptLanguage = map[string]string{
	"Latin":      "en",
	"Han":        "zh",
	"Hiragana":   "ja",
	"Katakana":   "ja",
	"Hangul":     "ko",
	"Cyrillic":   "ru",
	"Arabic":     "ar",
	"Hebrew":     "he",
	"Greek":      "el",
	"Devanagari": "hi",
}

func (t *Tagger) Analyze(ctx context.Context, text string) (capabilities.LanguageAnalysis, error) {
	counts := map[string]int{}
	total := 0
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsNumber(r) {
			continue
		}
		script := classify(r)
		if script == "" {
			continue
		}
		counts[script]++
		total++
	}

	if total == 0 {
		return capabilities.LanguageAnalysis{PrimaryLanguage: "und", Languages: []string{"und"}}, nil
	}

	dist := make(map[string]float64, len(counts))
	var primary string
	var primaryCount int
	var langs []string
	for script, n := range counts {
		lang := scriptLanguage[script]
		if lang == "" {
			lang = "und"
		}
		dist[lang] += float64(n) / float64(total)
		langs = append(langs, lang)
		if n > primaryCount || (n == primaryCount && lang < primary) {
			primaryCount = n
			primary = lang
		}
	}

	return capabilities.LanguageAnalysis{
		PrimaryLanguage: primary,
		IsMultilingual:  len(dist) > 1,
		Languages:       dedupeSorted(langs),
		Distribution:    dist,
	}, nil
}

func classify(r rune) string {
	switch {
	case unicode.Is(unicode.Latin, r):
		return "Latin"
	case unicode.Is(unicode.Han, r):
		return "Han"
	case unicode.Is(unicode.Hiragana, r):
		return "Hiragana"
	case unicode.Is(unicode.Katakana, r):
		return "Katakana"
	case unicode.Is(unicode.Hangul, r):
		return "Hangul"
	case unicode.Is(unicode.Cyrillic, r):
		return "Cyrillic"
	case unicode.Is(unicode.Arabic, r):
		return "Arabic"
	case unicode.Is(unicode.Hebrew, r):
		return "Hebrew"
	case unicode.Is(unicode.Greek, r):
		return "Greek"
	case unicode.Is(unicode.Devanagari, r):
		return "Devanagari"
	default:
		return ""
	}
}

func dedupeSorted(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && strings.Compare(out[j-1], out[j]) > 0; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

var _ capabilities.LanguageTagger = (*Tagger)(nil)
