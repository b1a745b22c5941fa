package memory

import (
	"errors"
	"testing"
	"time"
)

func TestCandidateValidate(t *testing.T) {
	valid := Candidate{Content: "a fact", Importance: 3, Type: TypeFact}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid candidate, got %v", err)
	}

	cases := []struct {
		name string
		cand Candidate
	}{
		{"empty content", Candidate{Content: "   ", Importance: 3, Type: TypeFact}},
		{"importance too low", Candidate{Content: "x", Importance: 0, Type: TypeFact}},
		{"importance too high", Candidate{Content: "x", Importance: 6, Type: TypeFact}},
		{"unknown type", Candidate{Content: "x", Importance: 3, Type: "gossip"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cand.Validate()
			if !errors.Is(err, ErrMalformedCandidate) {
				t.Errorf("Expected ErrMalformedCandidate, got %v", err)
			}
		})
	}
}

func TestClampImportance(t *testing.T) {
	if got := ClampImportance(0); got != MinImportance {
		t.Errorf("Expected %d, got %d", MinImportance, got)
	}
	if got := ClampImportance(7); got != MaxImportance {
		t.Errorf("Expected %d, got %d", MaxImportance, got)
	}
	if got := ClampImportance(3); got != 3 {
		t.Errorf("Expected 3, got %d", got)
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Now()

	m := Memory{CreatedAt: now.Add(-48 * time.Hour)}
	if age := m.AgeDays(now); age < 1.9 || age > 2.1 {
		t.Errorf("Expected age ~2 days, got %f", age)
	}

	// A recent access resets the age reference.
	m.LastAccessed = now.Add(-12 * time.Hour)
	if age := m.AgeDays(now); age < 0.4 || age > 0.6 {
		t.Errorf("Expected age ~0.5 days after access, got %f", age)
	}
}

func TestTypeValid(t *testing.T) {
	for _, typ := range []Type{TypeDecision, TypeInsight, TypeFact, TypePreference, TypeProject, TypeConversation, TypeGeneral} {
		if !typ.Valid() {
			t.Errorf("Expected %s to be valid", typ)
		}
	}
	if Type("opinion").Valid() {
		t.Error("Expected 'opinion' to be invalid")
	}
}
