package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"evewatch/internal/metrics"
	"evewatch/internal/types"
)

// Notifier posts best-effort webhook notifications for high and critical
// alerts. Delivery is fire-and-forget: it never blocks or fails ingestion.
type Notifier struct {
	mu     sync.RWMutex
	url    string
	client *http.Client
}

func NewNotifier(url string) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// UpdateURL swaps the webhook target, used on config reload
func (n *Notifier) UpdateURL(url string) {
	n.mu.Lock()
	n.url = url
	n.mu.Unlock()
}

// Notify dispatches a notification if the alert is high or critical.
// The POST runs on its own goroutine; errors are logged and dropped.
func (n *Notifier) Notify(a *types.Alert) {
	if a.Severity != types.SeverityCritical && a.Severity != types.SeverityHigh {
		return
	}
	n.mu.RLock()
	url := n.url
	n.mu.RUnlock()
	if url == "" {
		return
	}

	go n.post(url, a)
}

func (n *Notifier) post(url string, a *types.Alert) {
	metrics.NotificationsSent.Inc()

	payload := map[string]string{
		"content": fmt.Sprintf("**[%s] %s**\n%s -> %s (%s)\n%s",
			a.Severity, a.Signature, a.SourceIP, a.DestIP, a.Protocol, a.Timestamp),
	}
	body, _ := json.Marshal(payload)

	resp, err := n.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Printf("[NOTIFY] webhook failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[NOTIFY] webhook returned %d", resp.StatusCode)
	}
}
