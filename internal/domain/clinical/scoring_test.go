package clinical

import (
	"reflect"
	"testing"

	"github.com/ehr/mhemr/internal/domain/patient"
)

func strPtr(s string) *string { return &s }

func notes(n int, summary string) []*Note {
	out := make([]*Note, n)
	for i := range out {
		out[i] = &Note{Summary: strPtr(summary)}
	}
	return out
}

func TestDiagnosisLevel(t *testing.T) {
	tests := []struct {
		diagnosis string
		want      string
	}{
		{"", patient.RiskLow},
		{"Adjustment disorder", patient.RiskLow},
		{"Generalized Anxiety Disorder", patient.RiskModerate},
		{"ADHD, combined type", patient.RiskModerate},
		{"Bipolar I disorder", patient.RiskHigh},
		{"PTSD", patient.RiskHigh},
		{"Major depressive disorder, recurrent", patient.RiskHigh},
	}
	for _, tt := range tests {
		if got := DiagnosisLevel(tt.diagnosis); got != tt.want {
			t.Errorf("DiagnosisLevel(%q) = %s, want %s", tt.diagnosis, got, tt.want)
		}
	}
}

func TestFrequencyLevel(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, patient.RiskLow},
		{2, patient.RiskLow},
		{3, patient.RiskModerate},
		{5, patient.RiskModerate},
		{6, patient.RiskHigh},
		{20, patient.RiskHigh},
	}
	for _, tt := range tests {
		if got := FrequencyLevel(tt.count); got != tt.want {
			t.Errorf("FrequencyLevel(%d) = %s, want %s", tt.count, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		diagnosis string
		recent    []*Note
		want      string
		flagged   []string
	}{
		{"nothing", "", nil, patient.RiskLow, []string{}},
		{"diagnosis only", "Panic disorder", notes(1, "calm week"), patient.RiskModerate, []string{}},
		{"frequency beats diagnosis", "Panic disorder", notes(6, "routine"), patient.RiskHigh, []string{}},
		{"diagnosis beats frequency", "Schizophrenia", notes(3, "routine"), patient.RiskHigh, []string{}},
		{"keyword in summary", "", notes(1, "Reports SUICIDAL ideation"), patient.RiskHigh, []string{"suicidal"}},
		{"keyword in diagnosis", "", []*Note{{Diagnosis: strPtr("brief psychosis")}}, patient.RiskHigh, []string{"psychosis"}},
		{"keywords listed once", "", notes(2, "panic attack, self harm"), patient.RiskHigh, []string{"self harm", "panic attack"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Score(tt.diagnosis, tt.recent)
			if r.Level != tt.want {
				t.Errorf("level = %s, want %s (%+v)", r.Level, tt.want, r)
			}
			if !reflect.DeepEqual(r.Flagged, tt.flagged) {
				t.Errorf("flagged = %v, want %v", r.Flagged, tt.flagged)
			}
			if r.RecentNotes != len(tt.recent) {
				t.Errorf("recent notes = %d, want %d", r.RecentNotes, len(tt.recent))
			}
		})
	}
}
