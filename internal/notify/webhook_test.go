package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"evewatch/internal/types"
)

func TestNotifier_PostsHighAndCriticalOnly(t *testing.T) {
	received := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		json.Unmarshal(body, &payload)
		received <- payload["content"]
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)

	n.Notify(&types.Alert{Severity: types.SeverityLow, Signature: "quiet"})
	n.Notify(&types.Alert{Severity: types.SeverityInfo, Signature: "quiet"})
	n.Notify(&types.Alert{Severity: types.SeverityCritical, Signature: "loud", SourceIP: "1.2.3.4", DestIP: "5.6.7.8", Protocol: "TCP"})

	select {
	case content := <-received:
		if content == "" || !strings.Contains(content, "loud") {
			t.Errorf("Expected payload mentioning the signature, got %q", content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for webhook delivery")
	}

	select {
	case content := <-received:
		t.Errorf("Unexpected extra delivery: %q", content)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifier_EmptyURLIsNoOp(t *testing.T) {
	n := NewNotifier("")
	// must not panic or block
	n.Notify(&types.Alert{Severity: types.SeverityCritical, Signature: "x"})
}
