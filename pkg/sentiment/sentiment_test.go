package sentiment

import (
	"encoding/json"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		expected Sentiment
	}{
		{"five-class happy", "Happy", Happy},
		{"five-class bit irritated", "Bit Irritated", BitIrritated},
		{"five-class moderately concerned", "Moderately Concerned", ModeratelyConcerned},
		{"five-class anger", "Anger", Anger},
		{"five-class frustrated", "Frustrated", Frustrated},
		{"legacy pos", "pos", Happy},
		{"legacy neutral", "neutral", ModeratelyConcerned},
		{"legacy neg", "neg", Frustrated},
		{"case sensitive five-class", "happy", Unknown},
		{"case sensitive legacy", "POS", Unknown},
		{"extra whitespace", " Anger", Unknown},
		{"empty", "", Unknown},
		{"garbage", "ecstatic", Unknown},
		{"unknown sentinel label", "Unknown", Unknown},
		{"numeric score is not a label", "3", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.label); got != tt.expected {
				t.Errorf("Normalize(%q) = %#v, want %#v", tt.label, got, tt.expected)
			}
		})
	}
}

func TestNormalize_RoundTripsCanonicalLabels(t *testing.T) {
	for _, s := range append(Canonical(), Unknown) {
		label := s.String()
		if got := Normalize(label); got != s {
			t.Errorf("Normalize(%q) = %#v, want %#v", label, got, s)
		}
		if Normalize(Normalize(label).String()) != Normalize(label) {
			t.Errorf("normalize is not idempotent for %q", label)
		}
	}
}

func TestLegacyMappingIsOneWay(t *testing.T) {
	// pos becomes Happy, but Happy's label is not pos.
	if Normalize("pos").String() != "Happy" {
		t.Errorf("expected pos to render as Happy, got %q", Normalize("pos").String())
	}
	if Normalize("neutral") == BitIrritated || Normalize("neutral") == Anger {
		t.Error("neutral must map to the midpoint level")
	}
}

func TestTaxonomyOf(t *testing.T) {
	tests := []struct {
		label string
		want  Taxonomy
		ok    bool
	}{
		{"Happy", Emotion5, true},
		{"Bit Irritated", Emotion5, true},
		{"neg", Legacy3, true},
		{"neutral", Legacy3, true},
		{"Neutral", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := TaxonomyOf(tt.label)
		if got != tt.want || ok != tt.ok {
			t.Errorf("TaxonomyOf(%q) = (%q, %v), want (%q, %v)", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFromScore(t *testing.T) {
	tests := []struct {
		score int
		want  Sentiment
	}{
		{0, Unknown},
		{1, Happy},
		{2, BitIrritated},
		{3, ModeratelyConcerned},
		{4, Anger},
		{5, Frustrated},
		{6, Unknown},
		{-1, Unknown},
	}
	for _, tt := range tests {
		if got := FromScore(tt.score); got != tt.want {
			t.Errorf("FromScore(%d) = %#v, want %#v", tt.score, got, tt.want)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	levels := Canonical()
	for i := 1; i < len(levels); i++ {
		cmp, ok := Compare(levels[i-1], levels[i])
		if !ok || cmp != -1 {
			t.Errorf("expected %v < %v, got cmp=%d ok=%v", levels[i-1], levels[i], cmp, ok)
		}
	}

	if cmp, ok := Compare(Anger, Anger); !ok || cmp != 0 {
		t.Errorf("expected Anger == Anger, got cmp=%d ok=%v", cmp, ok)
	}
}

func TestUnknownExcludedFromComparisons(t *testing.T) {
	if _, ok := Unknown.Severity(); ok {
		t.Error("Unknown must not have a severity")
	}
	if _, ok := Compare(Unknown, Happy); ok {
		t.Error("comparisons involving Unknown must not be ok")
	}
	if _, ok := Compare(Frustrated, Sentiment(42)); ok {
		t.Error("out-of-range values must not compare")
	}
	if Unknown.Known() {
		t.Error("Unknown.Known() must be false")
	}
}

func TestJSONEncoding(t *testing.T) {
	type payload struct {
		Sentiment Sentiment `json:"sentiment"`
	}

	b, err := json.Marshal(payload{Sentiment: BitIrritated})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"sentiment":"Bit Irritated"}` {
		t.Errorf("unexpected encoding: %s", b)
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"sentiment":"neg"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Sentiment != Frustrated {
		t.Errorf("expected legacy neg to decode as Frustrated, got %#v", p.Sentiment)
	}

	if err := json.Unmarshal([]byte(`{"sentiment":"meh"}`), &p); err != nil {
		t.Fatalf("unknown labels must not fail decoding: %v", err)
	}
	if p.Sentiment != Unknown {
		t.Errorf("expected Unknown, got %#v", p.Sentiment)
	}
}
