package detection

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// FallbackTemplate is used for rules without a message template
const FallbackTemplate = "{name} detected in {location}: {count} cases within {window} hours."

// MessageTemplates maps rule IDs to alert message templates. Templates may
// use {name}, {location}, {count}, {total} and {window}.
type MessageTemplates map[string]string

// Render formats the alert message for a candidate
func (t MessageTemplates) Render(c *Candidate) string {
	tmpl, ok := t[c.Rule.ID]
	if !ok || strings.TrimSpace(tmpl) == "" {
		tmpl = FallbackTemplate
	}

	return strings.NewReplacer(
		"{name}", c.Rule.Name,
		"{location}", c.Location,
		"{count}", strconv.Itoa(len(c.Matches)),
		"{total}", strconv.Itoa(len(c.Window)),
		"{window}", strconv.Itoa(c.Rule.WindowHours),
	).Replace(tmpl)
}

// Assembler builds alert records from fired candidates
type Assembler struct {
	templates       MessageTemplates
	recommendations Recommendations
	newID           func(ruleID, location string, at time.Time) string
}

// NewAssembler creates an assembler using the given templates and recommendations
func NewAssembler(templates MessageTemplates, recommendations Recommendations) *Assembler {
	return &Assembler{
		templates:       templates,
		recommendations: recommendations,
		newID:           NewAlertID,
	}
}

// Assemble builds the alert for a candidate generated at the given instant
func (a *Assembler) Assemble(c *Candidate, at time.Time) model.GeneratedAlert {
	reportIDs := make([]string, 0, len(c.Matches))
	for _, report := range c.Matches {
		reportIDs = append(reportIDs, report.ID)
	}

	return model.GeneratedAlert{
		ID:            a.newID(c.Rule.ID, c.Location, at),
		RuleID:        c.Rule.ID,
		Title:         c.Rule.Name,
		Type:          c.Type,
		Severity:      c.Rule.Severity,
		Message:       a.templates.Render(c),
		Location:      c.Location,
		ReportIDs:     reportIDs,
		AffectedCount: len(c.Matches),
		CreatedAt:     at,
		Status:        model.AlertStatusActive,
		Evidence: model.AlertEvidence{
			Pattern:         AnalyzePattern(c.Rule.Condition, c.Matches),
			Confidence:      Confidence(len(c.Matches), c.Rule.Threshold),
			Recommendations: a.recommendations.For(c.Rule),
		},
	}
}

// NewAlertID derives an alert identifier from the rule, the location and
// the generation instant. A random UUID suffix keeps identifiers unique when the
// same rule fires for the same location within one millisecond.
func NewAlertID(ruleID, location string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%s", ruleID, slug(location), at.UnixMilli(), uuid.New().String())
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}
