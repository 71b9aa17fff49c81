// Package screen scores outgoing subject and body text for characteristics
// that commonly trip receiving spam filters.
package screen

import "strings"

const (
	// maxSpamPhrases is the number of distinct phrases tolerated before a
	// message is rejected.
	maxSpamPhrases = 2
	// maxUppercaseRatio is the highest share of uppercase letters tolerated
	// in subject+text.
	maxUppercaseRatio = 0.3
)

// spamPhrases are matched as lowercase substrings, not whole words. Some
// phrases overlap ("click here" / "click here now") and each one that is
// contained counts separately.
var spamPhrases = []string{
	"free money",
	"click here",
	"click here now",
	"urgent action required",
	"congratulations you won",
	"limited time offer",
	"act now",
	"make money fast",
	"no obligation",
	"risk free",
	"100% free",
	"cash bonus",
	"winner",
}

// Rule names the check that rejected a message.
type Rule string

const (
	RuleNone           Rule = ""
	RuleSpamPhrases    Rule = "spam_phrases"
	RuleCapitalization Rule = "capitalization"
)

// Verdict is the detailed outcome of screening a message. It is meant for
// logs and metrics; callers outside the service only learn accept/reject.
type Verdict struct {
	Acceptable     bool
	Rule           Rule
	MatchedPhrases []string
	UppercaseRatio float64
}

// IsAcceptable reports whether the message passes both the phrase and the
// capitalization checks.
func IsAcceptable(subject, text, html string) bool {
	return Screen(subject, text, html).Acceptable
}

// Screen runs both checks and reports which one, if any, rejected the
// message. The phrase check covers subject, text and html; the
// capitalization check covers subject and text only.
func Screen(subject, text, html string) Verdict {
	content := strings.ToLower(subject + " " + text + " " + html)

	var matched []string
	for _, phrase := range spamPhrases {
		if strings.Contains(content, phrase) {
			matched = append(matched, phrase)
		}
	}

	ratio := UppercaseRatio(subject + text)
	v := Verdict{
		Acceptable:     true,
		MatchedPhrases: matched,
		UppercaseRatio: ratio,
	}

	switch {
	case len(matched) > maxSpamPhrases:
		v.Acceptable = false
		v.Rule = RuleSpamPhrases
	case ratio > maxUppercaseRatio:
		v.Acceptable = false
		v.Rule = RuleCapitalization
	}
	return v
}

// UppercaseRatio returns the number of ASCII uppercase letters in s divided
// by the number of characters in s. An empty string has ratio 0.
func UppercaseRatio(s string) float64 {
	var total, upper int
	for _, r := range s {
		total++
		if r >= 'A' && r <= 'Z' {
			upper++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(upper) / float64(total)
}
