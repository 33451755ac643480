package detection

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

const (
	topSymptomCount = 3
	baseConfidence  = 0.8
	unknownLabel    = "unknown"
	noPHDataPattern = "No valid pH data"
)

// AnalyzePattern summarizes the matched reports backing a fired rule
func AnalyzePattern(condition model.ConditionKind, matches []model.Report) string {
	switch condition {
	case model.ConditionSymptomCount:
		return symptomPattern(matches)
	case model.ConditionWaterContamination:
		return contaminationPattern(matches)
	case model.ConditionWaterPH:
		return phPattern(matches)
	case model.ConditionSeverityCount:
		return severityPattern(matches)
	}
	return ""
}

// Confidence scores a match set against its threshold. A bare-threshold
// match scores 0.8; the score caps at 1.0 once matches exceed the
// threshold by 25%.
func Confidence(matchCount, threshold int) float64 {
	if threshold < 1 {
		threshold = 1
	}
	score := float64(matchCount) / float64(threshold) * baseConfidence
	return math.Max(0, math.Min(score, 1.0))
}

func symptomPattern(matches []model.Report) string {
	var t tally
	for _, report := range matches {
		for _, symptom := range report.SymptomSet() {
			t.add(symptom)
		}
	}
	return strings.Join(t.top(topSymptomCount), ", ")
}

func contaminationPattern(matches []model.Report) string {
	var t tally
	for _, report := range matches {
		t.add(string(report.ContaminationLabel()))
	}
	return "Predominant contamination level: " + t.mostFrequent()
}

func severityPattern(matches []model.Report) string {
	var t tally
	for _, report := range matches {
		t.add(string(report.SeverityLabel()))
	}
	return "Predominant severity: " + t.mostFrequent()
}

func phPattern(matches []model.Report) string {
	var (
		count       int
		sum, lo, hi float64
	)
	for _, report := range matches {
		ph, ok := report.PH()
		if !ok {
			continue
		}
		if count == 0 || ph < lo {
			lo = ph
		}
		if count == 0 || ph > hi {
			hi = ph
		}
		sum += ph
		count++
	}
	if count == 0 {
		return noPHDataPattern
	}
	return fmt.Sprintf("pH range %.1f-%.1f (mean %.1f)", lo, hi, sum/float64(count))
}

// tally counts labels case-insensitively, remembering the order and the
// spelling each was first seen with
type tally struct {
	keys    []string
	display map[string]string
	counts  map[string]int
}

func (t *tally) add(label string) {
	if label == "" {
		return
	}
	if t.counts == nil {
		t.counts = make(map[string]int)
		t.display = make(map[string]string)
	}
	key := strings.ToLower(label)
	if _, ok := t.counts[key]; !ok {
		t.keys = append(t.keys, key)
		t.display[key] = label
	}
	t.counts[key]++
}

// top returns up to n labels by descending count, ties in first-seen order
func (t *tally) top(n int) []string {
	ranked := append([]string(nil), t.keys...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return t.counts[ranked[i]] > t.counts[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	labels := make([]string, len(ranked))
	for i, key := range ranked {
		labels[i] = t.display[key]
	}
	return labels
}

func (t *tally) mostFrequent() string {
	top := t.top(1)
	if len(top) == 0 {
		return unknownLabel
	}
	return top[0]
}
