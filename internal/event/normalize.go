package event

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// HoursPerTurn converts time_remaining_turns into wall time. The game
// advances one turn every two hours.
const HoursPerTurn = 2

// CanonicalTypes lists the treaty categories the upstream feeds are known to
// produce. Unknown tokens still pass through normalization untouched; this
// set exists for diagnostics, not enforcement.
var CanonicalTypes = map[string]bool{
	"EXTENSION":    true,
	"MDOAP":        true,
	"MDP":          true,
	"NAP":          true,
	"NPT":          true,
	"ODOAP":        true,
	"ODP":          true,
	"OFFSHORE":     true,
	"PIAT":         true,
	"PROTECTORATE": true,
}

var actionAliases = map[string]Action{
	"terminated":  ActionEnded,
	"termination": ActionEnded,
}

// CanonicalAction lowercases, trims, and resolves terminal aliases.
// Returns "" for an empty or missing action.
func CanonicalAction(raw string) Action {
	a := strings.ToLower(strings.TrimSpace(raw))
	if a == "" {
		return ""
	}
	if alias, ok := actionAliases[a]; ok {
		return alias
	}
	return Action(a)
}

var (
	rankSuffixRe = regexp.MustCompile(`\s*\|\s*RANK\s*#:?\s*\d+\s*$`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// NormTreatyType canonicalizes a treaty type token: NFC normalization,
// uppercase, trailing "| RANK #n" garbage stripped, whitespace collapsed.
// Returns "" for empty input.
func NormTreatyType(raw string) string {
	text := strings.ToUpper(strings.TrimSpace(norm.NFC.String(raw)))
	if text == "" {
		return ""
	}
	text = rankSuffixRe.ReplaceAllString(text, "")
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(text, " "))
}

// CleanName collapses whitespace in an alliance display name.
func CleanName(raw string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(norm.NFC.String(raw), " "))
}

// NormPair orders an unordered alliance pair as (min, max).
func NormPair(a, b int64) (int64, int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// ExpiryAt converts a remaining-turns count observed at base into an absolute
// expiry instant. Returns the zero time (and false) when turns is nil
// (unknown) or negative (permanent).
func ExpiryAt(base time.Time, turns *int) (time.Time, bool) {
	if turns == nil || *turns < 0 {
		return time.Time{}, false
	}
	return base.Add(time.Duration(*turns) * HoursPerTurn * time.Hour), true
}
