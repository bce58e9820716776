package aggregate

import (
	"fmt"
	"testing"

	"evewatch/internal/types"
)

func mkAlert(sev types.Severity, sig, srcIP, proto, ts string) *types.Alert {
	return &types.Alert{
		Timestamp: ts,
		Severity:  sev,
		Signature: sig,
		SourceIP:  srcIP,
		DestIP:    "10.0.0.1",
		Protocol:  proto,
	}
}

func TestStore_ApplyCounts(t *testing.T) {
	s := NewStore()
	s.Apply(mkAlert(types.SeverityCritical, "sig-a", "1.1.1.1", "TCP", "2024-01-01T10:00:00Z"))
	s.Apply(mkAlert(types.SeverityCritical, "sig-a", "1.1.1.1", "TCP", "2024-01-01T10:05:00Z"))
	s.Apply(mkAlert(types.SeverityLow, "sig-b", "2.2.2.2", "GRE", "2024-01-01T11:00:00Z"))

	snap := s.Snapshot()
	if snap.TotalAlerts != 3 {
		t.Fatalf("Expected total 3, got %d", snap.TotalAlerts)
	}
	if snap.BySeverity[types.SeverityCritical] != 2 || snap.BySeverity[types.SeverityLow] != 1 {
		t.Errorf("Unexpected severity breakdown: %+v", snap.BySeverity)
	}

	// sum over severities must equal the total, including the seeded zeros
	sum := 0
	for _, sev := range types.Severities {
		if _, ok := snap.BySeverity[sev]; !ok {
			t.Errorf("Severity key %s missing from snapshot", sev)
		}
		sum += snap.BySeverity[sev]
	}
	if sum != snap.TotalAlerts {
		t.Errorf("Severity sum %d != total %d", sum, snap.TotalAlerts)
	}

	if snap.ByProtocol["TCP"] != 2 {
		t.Errorf("Expected 2 TCP, got %d", snap.ByProtocol["TCP"])
	}
	if snap.ByProtocol["GRE"] != 1 {
		t.Errorf("Expected unseen protocol key created on first observation, got %+v", snap.ByProtocol)
	}
	if snap.ByProtocol["DNS"] != 0 {
		t.Errorf("Expected seeded DNS at 0, got %d", snap.ByProtocol["DNS"])
	}
	if snap.LastUpdate == "" {
		t.Error("Expected lastUpdate to be set")
	}
}

func TestStore_RecentEviction(t *testing.T) {
	s := NewStore()
	for i := 0; i < 150; i++ {
		s.Apply(mkAlert(types.SeverityLow, fmt.Sprintf("sig-%d", i), "1.1.1.1", "TCP", "2024-01-01T10:00:00Z"))
	}
	snap := s.Snapshot()
	if len(snap.RecentAlerts) != RecentCapacity {
		t.Fatalf("Expected %d recent alerts, got %d", RecentCapacity, len(snap.RecentAlerts))
	}
	if snap.RecentAlerts[0].Signature != "sig-149" {
		t.Errorf("Expected newest first, got %s", snap.RecentAlerts[0].Signature)
	}
	if snap.RecentAlerts[99].Signature != "sig-50" {
		t.Errorf("Expected oldest surviving entry sig-50, got %s", snap.RecentAlerts[99].Signature)
	}
}

func TestStore_TimelineEviction(t *testing.T) {
	s := NewStore()
	// 30 distinct hours across two days; only 24 buckets may survive
	for day := 1; day <= 2; day++ {
		for h := 0; h < 15; h++ {
			ts := fmt.Sprintf("2024-01-%02dT%02d:00:00Z", day, h)
			s.Apply(mkAlert(types.SeverityLow, "sig", "1.1.1.1", "TCP", ts))
		}
	}
	snap := s.Snapshot()
	if len(snap.Timeline) > TimelineCapacity {
		t.Fatalf("Expected at most %d buckets, got %d", TimelineCapacity, len(snap.Timeline))
	}
	// the 30 inserts collapse onto 15 labels; same-label hits merge
	if len(snap.Timeline) != 15 {
		t.Fatalf("Expected 15 buckets, got %d", len(snap.Timeline))
	}
	if snap.Timeline[0].Count != 2 {
		t.Errorf("Expected merged bucket count 2, got %d", snap.Timeline[0].Count)
	}

	// all 24 possible hour-of-day labels stay within capacity
	s2 := NewStore()
	for i := 0; i < 30; i++ {
		ts := fmt.Sprintf("2024-01-01T%02d:00:00Z", i%24)
		s2.Apply(mkAlert(types.SeverityLow, "sig", "1.1.1.1", "TCP", ts))
	}
	if got := len(s2.Snapshot().Timeline); got > TimelineCapacity {
		t.Errorf("Expected at most %d buckets, got %d", TimelineCapacity, got)
	}
}

func TestStore_TopNTieBreak(t *testing.T) {
	s := NewStore()
	// 12 signatures, one hit each: the top-10 cut must keep first-seen order
	for i := 0; i < 12; i++ {
		s.Apply(mkAlert(types.SeverityLow, fmt.Sprintf("sig-%02d", i), fmt.Sprintf("10.0.0.%d", i), "TCP", "2024-01-01T10:00:00Z"))
	}
	// and one heavy hitter seen last must still rank first
	for i := 0; i < 5; i++ {
		s.Apply(mkAlert(types.SeverityLow, "sig-heavy", "10.9.9.9", "TCP", "2024-01-01T10:00:00Z"))
	}

	snap := s.Snapshot()
	if len(snap.TopSignatures) != TopN {
		t.Fatalf("Expected top %d, got %d", TopN, len(snap.TopSignatures))
	}
	if snap.TopSignatures[0].Signature != "sig-heavy" || snap.TopSignatures[0].Count != 5 {
		t.Errorf("Expected sig-heavy first, got %+v", snap.TopSignatures[0])
	}
	if snap.TopSignatures[1].Signature != "sig-00" {
		t.Errorf("Expected tie broken by first-seen order, got %s", snap.TopSignatures[1].Signature)
	}
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	for i := 0; i < 10; i++ {
		s.Apply(mkAlert(types.SeverityHigh, "sig", "1.1.1.1", "UDP", "2024-01-01T10:00:00Z"))
	}
	s.Reset()

	snap := s.Snapshot()
	if snap.TotalAlerts != 0 {
		t.Errorf("Expected 0 total after reset, got %d", snap.TotalAlerts)
	}
	if len(snap.RecentAlerts) != 0 {
		t.Errorf("Expected empty recent alerts, got %d", len(snap.RecentAlerts))
	}
	if len(snap.Timeline) != 0 {
		t.Errorf("Expected empty timeline, got %d", len(snap.Timeline))
	}
	if snap.BySeverity[types.SeverityHigh] != 0 {
		t.Errorf("Expected seeded severity zeroed, got %d", snap.BySeverity[types.SeverityHigh])
	}
	if snap.ByProtocol["UDP"] != 0 {
		t.Errorf("Expected seeded protocol zeroed, got %d", snap.ByProtocol["UDP"])
	}
	if snap.LastUpdate != "" {
		t.Errorf("Expected cleared lastUpdate, got %s", snap.LastUpdate)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.Apply(mkAlert(types.SeverityLow, "sig", "1.1.1.1", "TCP", "2024-01-01T10:00:00Z"))

	snap := s.Snapshot()
	snap.BySeverity[types.SeverityLow] = 999
	snap.RecentAlerts[0].Signature = "tampered"

	fresh := s.Snapshot()
	if fresh.BySeverity[types.SeverityLow] != 1 {
		t.Error("Snapshot mutation leaked into store counters")
	}
	if fresh.RecentAlerts[0].Signature != "sig" {
		t.Error("Snapshot mutation leaked into recent buffer")
	}
}

func TestHourLabel(t *testing.T) {
	if got := hourLabel("2024-01-01T07:30:00Z"); got != "07:00" {
		t.Errorf("Expected 07:00, got %s", got)
	}
	if got := hourLabel("2024-06-15T23:59:59.123456+0000"); got != "23:00" {
		t.Errorf("Expected 23:00 for eve-format timestamp, got %s", got)
	}
}
