package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"evewatch/internal/types"
)

// eveRecord is the subset of a Suricata eve.json record this service consumes.
// Severity is kept raw because upstream emits it either as a number or as a
// string, and the two encodings map to the five levels differently.
type eveRecord struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	SrcIP     string `json:"src_ip"`
	SrcPort   int    `json:"src_port"`
	DestIP    string `json:"dest_ip"`
	DestPort  int    `json:"dest_port"`
	Proto     string `json:"proto"`
	Alert     struct {
		Severity  json.RawMessage `json:"severity"`
		Signature string          `json:"signature"`
	} `json:"alert"`
}

// Line parses one raw log line into a canonical Alert. It returns nil for
// anything that is not a well-formed alert-class record; malformed lines are
// common during live tailing and are dropped without comment. The function
// touches no shared state.
func Line(line string, now time.Time) *types.Alert {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var rec eveRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil
	}
	if rec.EventType != "alert" {
		return nil
	}

	a := &types.Alert{
		Timestamp:  rec.Timestamp,
		Severity:   mapSeverity(rec.Alert.Severity),
		Signature:  rec.Alert.Signature,
		SourceIP:   rec.SrcIP,
		SourcePort: rec.SrcPort,
		DestIP:     rec.DestIP,
		DestPort:   rec.DestPort,
		Protocol:   strings.ToUpper(strings.TrimSpace(rec.Proto)),
	}

	if a.Timestamp == "" {
		a.Timestamp = now.UTC().Format(time.RFC3339)
	}
	if a.Signature == "" {
		a.Signature = "Unknown"
	}
	if a.SourceIP == "" {
		a.SourceIP = "unknown"
	}
	if a.DestIP == "" {
		a.DestIP = "unknown"
	}
	if a.Protocol == "" {
		a.Protocol = "UNKNOWN"
	}
	if a.SourcePort < 0 || a.SourcePort > 65535 {
		a.SourcePort = 0
	}
	if a.DestPort < 0 || a.DestPort > 65535 {
		a.DestPort = 0
	}

	return a
}

// mapSeverity normalizes the upstream severity indicator. The encoding shape
// selects the rule: a JSON number uses the Suricata threshold rule
// (<=1 critical, 2 high, 3 medium, else low); a JSON string uses the direct
// table (1..4 critical..low, anything else info). A missing field defaults
// to medium, the numeric rule applied to Suricata's default severity 3.
func mapSeverity(raw json.RawMessage) types.Severity {
	if len(raw) == 0 {
		return types.SeverityMedium
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.SeverityInfo
		}
		switch strings.TrimSpace(s) {
		case "1":
			return types.SeverityCritical
		case "2":
			return types.SeverityHigh
		case "3":
			return types.SeverityMedium
		case "4":
			return types.SeverityLow
		default:
			return types.SeverityInfo
		}
	}

	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return types.SeverityMedium
	}
	switch {
	case n <= 1:
		return types.SeverityCritical
	case n == 2:
		return types.SeverityHigh
	case n == 3:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}
