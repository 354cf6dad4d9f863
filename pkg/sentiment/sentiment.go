// Package sentiment normalizes sentiment labels from every taxonomy generation
// ThreadLens has shipped into one canonical, severity-ordered enum.
package sentiment

import "fmt"

// Sentiment is the canonical five-level sentiment scale. The zero value is Unknown.
type Sentiment int

const (
	Unknown Sentiment = iota
	Happy
	BitIrritated
	ModeratelyConcerned
	Anger
	Frustrated
)

// Taxonomy identifies which label generation a value was expressed in.
type Taxonomy string

const (
	// Legacy3 is the original pos/neutral/neg scheme.
	Legacy3 Taxonomy = "legacy3"
	// Emotion5 is the five-level emotion scheme.
	Emotion5 Taxonomy = "emotion5"
)

// Wire spellings of the five-level scheme. These are a public contract.
const (
	LabelHappy               = "Happy"
	LabelBitIrritated        = "Bit Irritated"
	LabelModeratelyConcerned = "Moderately Concerned"
	LabelAnger               = "Anger"
	LabelFrustrated          = "Frustrated"
	LabelUnknown             = "Unknown"
)

// Legacy three-class spellings.
const (
	LabelPos     = "pos"
	LabelNeutral = "neutral"
	LabelNeg     = "neg"
)

var canonicalLabels = map[string]Sentiment{
	LabelHappy:               Happy,
	LabelBitIrritated:        BitIrritated,
	LabelModeratelyConcerned: ModeratelyConcerned,
	LabelAnger:               Anger,
	LabelFrustrated:          Frustrated,
}

// The legacy scheme has no equivalent for the two intermediate levels,
// so neutral maps to the midpoint.
var legacyLabels = map[string]Sentiment{
	LabelPos:     Happy,
	LabelNeutral: ModeratelyConcerned,
	LabelNeg:     Frustrated,
}

// Normalize maps a label from either taxonomy onto the canonical scale.
// Matching is case-sensitive. Unrecognized labels return Unknown.
func Normalize(label string) Sentiment {
	if s, ok := canonicalLabels[label]; ok {
		return s
	}
	if s, ok := legacyLabels[label]; ok {
		return s
	}
	return Unknown
}

// TaxonomyOf reports which generation label belongs to.
func TaxonomyOf(label string) (Taxonomy, bool) {
	if _, ok := canonicalLabels[label]; ok {
		return Emotion5, true
	}
	if _, ok := legacyLabels[label]; ok {
		return Legacy3, true
	}
	return "", false
}

// FromScore maps the 1..5 integer scale used by score-based classifiers.
func FromScore(score int) Sentiment {
	if score < int(Happy) || score > int(Frustrated) {
		return Unknown
	}
	return Sentiment(score)
}

// Canonical returns the five known levels in ascending severity.
func Canonical() []Sentiment {
	return []Sentiment{Happy, BitIrritated, ModeratelyConcerned, Anger, Frustrated}
}

// Known reports whether s is one of the five real levels.
func (s Sentiment) Known() bool {
	return s >= Happy && s <= Frustrated
}

// Severity returns the 1-based severity of s. Unknown has no severity.
func (s Sentiment) Severity() (int, bool) {
	if !s.Known() {
		return 0, false
	}
	return int(s), true
}

// Compare orders a and b by severity. ok is false if either is Unknown.
func Compare(a, b Sentiment) (cmp int, ok bool) {
	sa, okA := a.Severity()
	sb, okB := b.Severity()
	if !okA || !okB {
		return 0, false
	}
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}

// String returns the canonical wire label.
func (s Sentiment) String() string {
	switch s {
	case Happy:
		return LabelHappy
	case BitIrritated:
		return LabelBitIrritated
	case ModeratelyConcerned:
		return LabelModeratelyConcerned
	case Anger:
		return LabelAnger
	case Frustrated:
		return LabelFrustrated
	}
	return LabelUnknown
}

// MarshalText encodes s as its canonical label.
func (s Sentiment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts any label from either taxonomy. It never fails;
// unrecognized labels decode to Unknown.
func (s *Sentiment) UnmarshalText(text []byte) error {
	*s = Normalize(string(text))
	return nil
}

// GoString helps test failure output.
func (s Sentiment) GoString() string {
	return fmt.Sprintf("sentiment.Sentiment(%q)", s.String())
}
