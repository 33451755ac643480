package notify

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

func testAlert(severity model.AlertSeverity) *model.GeneratedAlert {
	return &model.GeneratedAlert{
		ID:            "diarrhea-outbreak-rampur-1",
		RuleID:        "diarrhea-outbreak",
		Title:         "Diarrhea Outbreak",
		Type:          model.AlertTypeDiseaseOutbreak,
		Severity:      severity,
		Message:       "Potential diarrhea outbreak in Rampur: 3 cases reported within 24 hours.",
		Location:      "Rampur",
		AffectedCount: 3,
		Status:        model.AlertStatusActive,
		Evidence: model.AlertEvidence{
			Pattern:         "Diarrhea, Fever",
			Confidence:      0.8,
			Recommendations: []string{"Notify the district health officer", "Monitor the area daily for new cases"},
		},
	}
}

func TestLogChannel(t *testing.T) {
	channel := NewLogChannel(zaptest.NewLogger(t))
	assert.Equal(t, "log", channel.Name())
	assert.NoError(t, channel.Send(testAlert(model.AlertSeverityHigh)))
}

func TestEmailChannel_Send(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg string

	channel := NewEmailChannel(zaptest.NewLogger(t), EmailConfig{
		Host:        "smtp.example.org",
		Port:        587,
		From:        "sentinel@example.org",
		Recipients:  []string{"dho@example.org"},
		MinSeverity: model.AlertSeverityHigh,
	}).WithSendMail(func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	})

	require.NoError(t, channel.Send(testAlert(model.AlertSeverityCritical)))
	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.Equal(t, []string{"dho@example.org"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [CRITICAL] Diarrhea Outbreak - Rampur")
	assert.Contains(t, gotMsg, "Confidence: 80%")
	assert.Contains(t, gotMsg, "2. Monitor the area daily for new cases")
}

func TestEmailChannel_HeaderLineBreaks(t *testing.T) {
	var gotMsg string
	channel := NewEmailChannel(zaptest.NewLogger(t), EmailConfig{
		Host:       "smtp.example.org",
		Port:       587,
		From:       "sentinel@example.org",
		Recipients: []string{"dho@example.org"},
	}).WithSendMail(func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = string(msg)
		return nil
	})

	alert := testAlert(model.AlertSeverityHigh)
	alert.Location = "Rampur\r\nBcc: attacker@evil"
	alert.Title = "Diarrhea\nOutbreak"
	require.NoError(t, channel.Send(alert))

	headers, _, found := strings.Cut(gotMsg, "\r\n\r\n")
	require.True(t, found)
	lines := strings.Split(headers, "\r\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), line)
	}
	assert.Equal(t, "Subject: [HIGH] Diarrhea Outbreak - Rampur Bcc: attacker@evil", lines[2])
}

func TestEmailChannel_NonASCIISubject(t *testing.T) {
	var gotMsg string
	channel := NewEmailChannel(zaptest.NewLogger(t), EmailConfig{
		Host:       "smtp.example.org",
		Recipients: []string{"dho@example.org"},
	}).WithSendMail(func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = string(msg)
		return nil
	})

	alert := testAlert(model.AlertSeverityHigh)
	alert.Location = "Gaurīganj"
	require.NoError(t, channel.Send(alert))
	assert.Contains(t, gotMsg, "Subject: =?UTF-8?q?")
}

func TestEmailChannel_BelowThreshold(t *testing.T) {
	called := false
	channel := NewEmailChannel(zaptest.NewLogger(t), EmailConfig{
		Host:        "smtp.example.org",
		Recipients:  []string{"dho@example.org"},
		MinSeverity: model.AlertSeverityHigh,
	}).WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	})

	require.NoError(t, channel.Send(testAlert(model.AlertSeverityMedium)))
	assert.False(t, called)
}

func TestEmailChannel_Errors(t *testing.T) {
	channel := NewEmailChannel(zaptest.NewLogger(t), EmailConfig{Host: "smtp.example.org"})
	require.Error(t, channel.Send(testAlert(model.AlertSeverityHigh)))

	channel = NewEmailChannel(zaptest.NewLogger(t), EmailConfig{
		Host:       "smtp.example.org",
		Recipients: []string{"dho@example.org"},
	}).WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	})
	err := channel.Send(testAlert(model.AlertSeverityHigh))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
