package clinical

import (
	"strings"
	"time"

	"github.com/ehr/mhemr/internal/domain/patient"
)

// RiskWindow is how far back notes count towards the risk score.
const RiskWindow = 30 * 24 * time.Hour

// Note counts within RiskWindow that raise the frequency level.
const (
	ModerateNoteCount = 3
	HighNoteCount     = 6
)

// FlaggedKeywords in a recent note's summary or diagnosis make the patient
// high risk outright.
var FlaggedKeywords = []string{
	"suicidal", "suicide", "self-harm", "self harm", "cutting",
	"overdose", "homicidal", "kill myself", "kill him", "kill her",
	"plan to die", "want to die", "panic attack", "psychosis", "hallucination",
}

var (
	highSeverityDiagnoses = []string{
		"bipolar", "schizophrenia", "psychosis", "major depressive disorder",
		"mdd", "ptsd", "borderline", "substance use", "opioid use",
	}
	moderateSeverityDiagnoses = []string{
		"gad", "generalized anxiety", "anxiety", "panic", "adhd", "depression",
	}
)

var riskRank = map[string]int{patient.RiskLow: 0, patient.RiskModerate: 1, patient.RiskHigh: 2}

// Score computes a risk report from the primary diagnosis and the notes
// written within RiskWindow. Any flagged keyword yields high; otherwise the
// higher of the diagnosis and note frequency levels wins. Matching is case
// insensitive substring matching.
func Score(diagnosis string, recent []*Note) RiskReport {
	r := RiskReport{
		DiagnosisLevel: DiagnosisLevel(diagnosis),
		FrequencyLevel: FrequencyLevel(len(recent)),
		RecentNotes:    len(recent),
		Flagged:        []string{},
	}
	for _, n := range recent {
		for _, text := range []*string{n.Summary, n.Diagnosis} {
			if text == nil {
				continue
			}
			for _, k := range flaggedIn(*text) {
				if !containsString(r.Flagged, k) {
					r.Flagged = append(r.Flagged, k)
				}
			}
		}
	}
	switch {
	case len(r.Flagged) > 0:
		r.Level = patient.RiskHigh
	case riskRank[r.DiagnosisLevel] >= riskRank[r.FrequencyLevel]:
		r.Level = r.DiagnosisLevel
	default:
		r.Level = r.FrequencyLevel
	}
	return r
}

// DiagnosisLevel buckets a free-text diagnosis.
func DiagnosisLevel(diagnosis string) string {
	d := strings.ToLower(diagnosis)
	switch {
	case d == "":
		return patient.RiskLow
	case containsAny(d, highSeverityDiagnoses):
		return patient.RiskHigh
	case containsAny(d, moderateSeverityDiagnoses):
		return patient.RiskModerate
	}
	return patient.RiskLow
}

// FrequencyLevel buckets the number of recent notes.
func FrequencyLevel(count int) string {
	switch {
	case count >= HighNoteCount:
		return patient.RiskHigh
	case count >= ModerateNoteCount:
		return patient.RiskModerate
	}
	return patient.RiskLow
}

func flaggedIn(text string) []string {
	t := strings.ToLower(text)
	var out []string
	for _, k := range FlaggedKeywords {
		if strings.Contains(t, k) {
			out = append(out, k)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
