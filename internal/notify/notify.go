package notify

import (
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// LogChannel writes alerts to the service log
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a new log notification channel
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger.Named("notify")}
}

// Name returns the channel name
func (c *LogChannel) Name() string { return "log" }

// Send logs the alert
func (c *LogChannel) Send(alert *model.GeneratedAlert) error {
	c.logger.Warn("Alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("rule_id", alert.RuleID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("location", alert.Location),
		zap.Int("affected", alert.AffectedCount),
		zap.Float64("confidence", alert.Evidence.Confidence),
		zap.String("message", alert.Message))
	return nil
}

// EmailConfig holds SMTP settings for the email channel
type EmailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	Recipients  []string
	MinSeverity model.AlertSeverity
}

// SendMailFunc matches smtp.SendMail
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel emails alerts at or above a minimum severity
type EmailChannel struct {
	logger   *zap.Logger
	config   EmailConfig
	sendMail SendMailFunc
}

// NewEmailChannel creates a new email notification channel
func NewEmailChannel(logger *zap.Logger, config EmailConfig) *EmailChannel {
	return &EmailChannel{
		logger:   logger.Named("notify"),
		config:   config,
		sendMail: smtp.SendMail,
	}
}

// WithSendMail replaces the SMTP transport
func (c *EmailChannel) WithSendMail(fn SendMailFunc) *EmailChannel {
	c.sendMail = fn
	return c
}

// Name returns the channel name
func (c *EmailChannel) Name() string { return "email" }

// Send emails the alert when its severity meets the configured minimum
func (c *EmailChannel) Send(alert *model.GeneratedAlert) error {
	if alert.Severity.Rank() < c.config.MinSeverity.Rank() {
		c.logger.Debug("Alert below email severity threshold",
			zap.String("alert_id", alert.ID),
			zap.String("severity", string(alert.Severity)))
		return nil
	}
	if len(c.config.Recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	// Create SMTP auth
	auth := smtp.PlainAuth("",
		c.config.Username,
		c.config.Password,
		c.config.Host)

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	if err := c.sendMail(addr, auth, c.config.From, c.config.Recipients, c.format(alert)); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	c.logger.Info("Alert email sent",
		zap.String("alert_id", alert.ID),
		zap.Int("recipients", len(c.config.Recipients)))
	return nil
}

// format renders the alert as a plain-text email message
func (c *EmailChannel) format(alert *model.GeneratedAlert) []byte {
	var body strings.Builder
	fmt.Fprintf(&body, "%s\r\n\r\n", alert.Message)
	fmt.Fprintf(&body, "Location: %s\r\n", alert.Location)
	fmt.Fprintf(&body, "Severity: %s\r\n", alert.Severity)
	fmt.Fprintf(&body, "Reports: %d\r\n", alert.AffectedCount)
	fmt.Fprintf(&body, "Pattern: %s\r\n", alert.Evidence.Pattern)
	fmt.Fprintf(&body, "Confidence: %.0f%%\r\n", alert.Evidence.Confidence*100)
	if len(alert.Evidence.Recommendations) > 0 {
		body.WriteString("\r\nRecommended actions:\r\n")
		for i, action := range alert.Evidence.Recommendations {
			fmt.Fprintf(&body, "%d. %s\r\n", i+1, action)
		}
	}

	subject := fmt.Sprintf("[%s] %s - %s",
		strings.ToUpper(string(alert.Severity)), alert.Title, alert.Location)

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s",
		headerValue(c.config.From),
		headerValue(strings.Join(c.config.Recipients, ", ")),
		mime.QEncoding.Encode("UTF-8", headerValue(subject)),
		body.String())

	return []byte(msg)
}

// headerValue folds line breaks into spaces. Locations and titles come from
// submitted reports and must not start new header lines.
func headerValue(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}
