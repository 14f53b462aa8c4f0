package xmr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/processchart/xmr/pkg/chart"
	"github.com/processchart/xmr/pkg/eventbus"
)

// Report is the JSON payload delivered to the webhook when a run finishes.
type Report struct {
	RunID      string    `json:"run_id"`
	Series     string    `json:"series"`
	Outcome    string    `json:"outcome"`
	Rows       int       `json:"rows"`
	Rule2      int       `json:"rule2_triggers"`
	Rule3      int       `json:"rule3_triggers"`
	Signals    int       `json:"signals"`
	Triggers   []Trigger `json:"triggers,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run outcomes as they appear in the report.
const (
	OutcomeCompleted string = "completed"
	OutcomeFailed    string = "failed"
)

// Notifier delivers the end-of-run report.
type Notifier interface {
	Send(ctx context.Context, r Report) error
}

type noopNotifier struct{}

func (n noopNotifier) Send(ctx context.Context, r Report) error { return nil }

// webhookNotifier POSTs the report as JSON, retrying with exponential
// backoff until the configured timeout elapses.
type webhookNotifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func newNotifier(c Config) Notifier {
	switch c.WebhookURL {
	case "":
		return noopNotifier{}
	default:
		return &webhookNotifier{
			url:     c.WebhookURL,
			timeout: c.NotifyTimeout,
			client:  &http.Client{Timeout: 10 * time.Second},
		}
	}
}

func (w *webhookNotifier) Send(ctx context.Context, r Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	send := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned %s", resp.Status)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = w.timeout
	return backoff.Retry(send, backoff.WithContext(bo, ctx))
}

// notifyLoop drains chart run events from the bus and folds them into a
// single end-of-run report.  It runs until the event channel closes, then
// closes done so the bus shutdown can complete.
func notifyLoop(events chan eventbus.Event, done chan struct{}, n Notifier, cfg Config, log *slog.Logger) {
	defer close(done)

	report := Report{RunID: cfg.ID, Series: cfg.Series.String()}
	for evt := range events {
		switch evt.Type {
		case eventbus.RuleTriggered:
			report.Triggers = append(report.Triggers, Trigger{Row: evt.Row, Label: evt.Label})
			switch evt.Label {
			case chart.LabelRule2:
				report.Rule2++
			case chart.LabelRule3:
				report.Rule3++
			}
		case eventbus.SignalRaised:
			report.Signals++
		case eventbus.RunCompleted:
			report.Outcome = OutcomeCompleted
			report.Rows = evt.Row
			report.FinishedAt = evt.At
			if cfg.NotifyOnSuccess {
				deliver(n, report, cfg.NotifyTimeout, log)
			}
		case eventbus.RunFailed:
			report.Outcome = OutcomeFailed
			report.Rows = evt.Row
			report.Error = evt.Err
			report.FinishedAt = evt.At
			if cfg.NotifyOnFailure {
				deliver(n, report, cfg.NotifyTimeout, log)
			}
		}
	}
}

func deliver(n Notifier, r Report, timeout time.Duration, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := n.Send(ctx, r); err != nil {
		log.Warn("could not deliver run report", "error", err)
	}
}
