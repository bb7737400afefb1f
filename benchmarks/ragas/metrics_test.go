// ABOUTME: Tests for RAGAS metric calculations
// ABOUTME: Covers faithfulness, context recall, source counting and pass/fail status

package ragas

import (
	"testing"
)

func TestCalculateFaithfulness(t *testing.T) {
	m := NewMetricsCalculator()

	tests := []struct {
		name      string
		response  string
		expected  []string
		forbidden []string
		want      float64
	}{
		{"all expected, case insensitive", "helios opened the plant", []string{"Helios"}, refusals, 1.0},
		{"half expected", "Voltra is using solid-state cells", []string{"Voltra", "Nordgrid"}, refusals, 0.5},
		{"refusal halves the score", "I don't know, maybe Helios", []string{"Helios"}, refusals, 0.5},
		{"nothing expected", "anything", nil, nil, 1.0},
		{"missing and forbidden", "I don't know", []string{"Helios"}, refusals, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detail := m.CalculateFaithfulness(tt.response, tt.expected, tt.forbidden)
			if got != tt.want {
				t.Errorf("CalculateFaithfulness() = %v (%s), want %v", got, detail, tt.want)
			}
			if detail == "" {
				t.Error("detail should not be empty")
			}
		})
	}
}

func TestCalculateContextRecall(t *testing.T) {
	m := NewMetricsCalculator()

	tests := []struct {
		name     string
		context  []string
		expected []string
		want     float64
	}{
		{"nothing required", nil, nil, 1.0},
		{"all found across items", []string{"solid-state cells", "iron-air batteries"}, []string{"solid-state", "IRON-AIR"}, 1.0},
		{"partial", []string{"solid-state cells"}, []string{"solid-state", "iron-air"}, 0.5},
		{"none", []string{""}, []string{"Phoenix"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := m.CalculateContextRecall(tt.context, tt.expected)
			if got != tt.want {
				t.Errorf("CalculateContextRecall() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCountSources(t *testing.T) {
	m := NewMetricsCalculator()
	contextText := "[Voltra Motors bets on solid-state batteries #0] (https://a)\ntext\n\n" +
		"[Nordgrid expands grid storage in Texas #0] (https://b)\ntext\n\n" +
		"[Nordgrid expands grid storage in Texas #1] (https://b)\nmore"

	if got := m.CountSources(contextText); got != 2 {
		t.Errorf("CountSources() = %d, want 2", got)
	}
	if got := m.CountSources("CSV profile:\nShape: 6 rows x 3 columns"); got != 0 {
		t.Errorf("CountSources() = %d, want 0 for attachment context", got)
	}
}

func TestEvaluateTest_Status(t *testing.T) {
	m := NewMetricsCalculator()
	scenario := GetTestRetrieval()

	pass := m.EvaluateTest(scenario, "Helios Semiconductor did.", []string{"[Helios Semiconductor opens Arizona fab #0] (x)\nPhoenix, Arizona"})
	if pass.Status != "PASS" {
		t.Errorf("Status = %s, want PASS (%+v)", pass.Status, pass.Details)
	}
	if pass.Details["context_sources"] != 1 {
		t.Errorf("context_sources = %v, want 1", pass.Details["context_sources"])
	}

	fail := m.EvaluateTest(scenario, "I don't know.", []string{""})
	if fail.Status != "FAIL" {
		t.Errorf("Status = %s, want FAIL", fail.Status)
	}
	if fail.OverallScore != 0 {
		t.Errorf("OverallScore = %v, want 0", fail.OverallScore)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]TestResult{{Status: "PASS"}, {Status: "FAIL"}, {Status: "PASS"}})
	if s.TotalTests != 3 || s.Passed != 2 || s.Failed != 1 {
		t.Errorf("Summarize() = %+v", s)
	}
}

func TestGetTest(t *testing.T) {
	for _, s := range GetAllTests() {
		got, err := GetTest(s.ID)
		if err != nil {
			t.Fatalf("GetTest(%q) error = %v", s.ID, err)
		}
		if got.Name != s.Name {
			t.Errorf("GetTest(%q).Name = %q", s.ID, got.Name)
		}
		last := s.Turns[len(s.Turns)-1].TurnNumber
		if s.GroundTruth.FinalQueryTurn != last {
			t.Errorf("%s: FinalQueryTurn = %d, want last turn %d", s.ID, s.GroundTruth.FinalQueryTurn, last)
		}
	}

	if _, err := GetTest("7a"); err == nil {
		t.Error("expected error for unknown test id")
	}
}
