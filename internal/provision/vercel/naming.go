package vercel

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

const maxProjectNameLen = 100

var (
	invalidCharsRe  = regexp.MustCompile(`[^a-z0-9._-]+`)
	repeatHyphenRe  = regexp.MustCompile(`-{2,}`)
	suffixAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixRandChars = 3
)

// SanitizeProjectName normalizes a name to the hosting vendor's project
// naming rules. Applying it twice yields the same result.
func SanitizeProjectName(name string) string {
	s := strings.ToLower(name)
	s = invalidCharsRe.ReplaceAllString(s, "-")
	s = repeatHyphenRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxProjectNameLen {
		s = strings.Trim(s[:maxProjectNameLen], "-")
	}
	return s
}

// nextCandidate derives a new project name from a colliding base: a 6-digit
// time-derived suffix plus a short random suffix. Uniqueness comes from
// mutation and retry, not from pre-checking existence.
func nextCandidate(base string) string {
	ts := time.Now().UnixMilli() % 1_000_000
	var sb strings.Builder
	for i := 0; i < suffixRandChars; i++ {
		sb.WriteByte(suffixAlphabet[rand.Intn(len(suffixAlphabet))])
	}
	suffix := fmt.Sprintf("-%06d-%s", ts, sb.String())

	if len(base)+len(suffix) > maxProjectNameLen {
		base = strings.Trim(base[:maxProjectNameLen-len(suffix)], "-")
	}
	return base + suffix
}
