// Package notify posts published alerts to a webhook or Slack channel.
// Notification is best-effort: a delivery failure is logged and surfaced but
// never fails or unpublishes a run.
package notify

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"adpulse/core"
)

// Methods supported by the notifier.
const (
	MethodWebhook = "webhook"
	MethodSlack   = "slack"
)

// Config controls delivery.
type Config struct {
	WebhookURL string
	// Method is "webhook" (generic JSON POST) or "slack".
	Method string
	// MinSeverity filters alerts below this severity ("warning" passes
	// everything actionable, "critical" only the worst).
	MinSeverity string
	Timeout     time.Duration
}

// Notifier delivers alert digests.
type Notifier struct {
	config Config
	client *http.Client
	logger *zap.SugaredLogger
}

// NewNotifier creates a notifier.
func NewNotifier(config Config, logger *zap.SugaredLogger) *Notifier {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Notifier{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		logger: logger,
	}
}

// filter drops alerts below the configured severity.
func (n *Notifier) filter(alerts []core.Alert) []core.Alert {
	if n.config.MinSeverity == "" {
		return alerts
	}
	min := core.SeverityRank(n.config.MinSeverity)
	var kept []core.Alert
	for _, a := range alerts {
		if core.SeverityRank(a.Severity) >= min {
			kept = append(kept, a)
		}
	}
	return kept
}

// NotifyRun sends one digest for a published run's alerts. No alerts above
// the severity floor means no message.
func (n *Notifier) NotifyRun(meta *core.RunMetadata, alerts []core.Alert) error {
	alerts = n.filter(alerts)
	if len(alerts) == 0 {
		n.logger.Debugw("no alerts above severity floor, skipping notification",
			"run_id", meta.RunID, "min_severity", n.config.MinSeverity)
		return nil
	}

	var payload interface{}
	if n.config.Method == MethodSlack {
		payload = slackPayload(meta, alerts)
	} else {
		payload = webhookPayload(meta, alerts)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.config.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	n.logger.Infow("sent alert notification",
		"run_id", meta.RunID, "alerts", len(alerts), "method", n.config.Method)
	return nil
}

func webhookPayload(meta *core.RunMetadata, alerts []core.Alert) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		items = append(items, map[string]interface{}{
			"entity_id": a.EntityID,
			"rule_id":   a.RuleID,
			"severity":  a.Severity,
			"metric":    a.Metric,
			"ratio":     a.Ratio,
			"predicted": a.Predicted,
			"baseline":  a.Baseline,
		})
	}
	return map[string]interface{}{
		"run_id":    meta.RunID,
		"client_id": meta.ClientID,
		"as_of":     meta.AsOf.Format("2006-01-02"),
		"alerts":    items,
	}
}

func slackPayload(meta *core.RunMetadata, alerts []core.Alert) map[string]interface{} {
	severityColor := map[string]string{
		core.SeverityCritical: "#d32f2f",
		core.SeverityWarning:  "#ff9800",
	}

	attachments := make([]map[string]interface{}, 0, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		color := severityColor[a.Severity]
		if color == "" {
			color = "#757575"
		}
		attachments = append(attachments, map[string]interface{}{
			"color": color,
			"fields": []map[string]interface{}{
				{"title": "Campaign", "value": a.EntityID, "short": true},
				{"title": "Rule", "value": a.RuleID, "short": true},
				{"title": "Metric", "value": a.Metric, "short": true},
				{"title": "Severity", "value": a.Severity, "short": true},
			},
			"footer": "adpulse",
		})
	}
	return map[string]interface{}{
		"text": fmt.Sprintf("*%s*: %d campaign alert(s) for %s",
			meta.ClientID, len(alerts), meta.AsOf.Format("2006-01-02")),
		"attachments": attachments,
	}
}
