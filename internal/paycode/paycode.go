// Package paycode generates the payment codes users put in their bank
// transfer descriptions and extracts them back out of the free-text
// descriptions the gateway reports.
//
// Extraction is deliberately permissive: banks inject unpredictable text,
// spacing and casing around the code, and a missed code only means the
// deposit waits for manual approval, while crediting the wrong account is
// never acceptable. The actual safety comes from the exact-equality lookup
// against a known pending deposit, not from these patterns.
package paycode

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const Prefix = "OTP"

// minAcceptLen is the strict acceptance filter: prefix (3) plus a base-36
// timestamp (6 for current epochs) plus at least part of the random tail.
const minAcceptLen = 11

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Ordered from strict to loose; first accepted match wins.
var patterns = []*regexp.Regexp{
	// Contiguous prefix + body.
	regexp.MustCompile(`OTP[A-Z0-9]{8,}`),
	// Whitespace between prefix and body, or inside the body.
	regexp.MustCompile(`OTP[A-Z0-9\s]{8,}`),
	// Code behind a label the paying bank prepends.
	regexp.MustCompile(`(?:MA\s?TT|NAP)\s*:?\s*(OTP[A-Z0-9]{6,})`),
	// Whole description is the code.
	regexp.MustCompile(`^OTP[A-Z0-9]{8,}$`),
	// Loose word-boundary match.
	regexp.MustCompile(`\bOTP[A-Z0-9]{6,}\b`),
}

// Generate returns a new payment code: OTP + base-36 unix timestamp + 4
// random base-36 characters, uppercase. Uniqueness is enforced by the
// deposit store; callers retry on the rare collision.
func Generate() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().Unix(), 36))
	tail := make([]byte, 4)
	for i := range tail {
		tail[i] = base36[rand.Intn(len(base36))]
	}
	return Prefix + ts + string(tail)
}

// Extract returns the first recognizable payment code in content, or ""
// if none is found. Candidates are upper-cased and stripped of internal
// whitespace before the acceptance filter runs.
func Extract(content string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(content))
	if cleaned == "" {
		return ""
	}
	loose := ""
	for _, pattern := range patterns {
		groups := pattern.FindStringSubmatch(cleaned)
		if groups == nil {
			continue
		}
		candidate := groups[0]
		if len(groups) > 1 {
			candidate = groups[1]
		}
		candidate = stripSpace(candidate)
		if strings.HasPrefix(candidate, Prefix) && len(candidate) >= minAcceptLen {
			return candidate
		}
		if loose == "" && strings.HasPrefix(candidate, Prefix) {
			loose = candidate
		}
	}
	// Secondary fallback: a short OTP-prefixed run is still worth looking
	// up; the exact-equality check downstream decides whether it is real.
	return loose
}

func stripSpace(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
