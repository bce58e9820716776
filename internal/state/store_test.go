package state

import (
	"path/filepath"
	"testing"

	"evewatch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAlert(sev types.Severity, srcIP, ts string) *types.Alert {
	return &types.Alert{
		Timestamp:  ts,
		Severity:   sev,
		Signature:  "ET SCAN Nmap",
		SourceIP:   srcIP,
		SourcePort: 4444,
		DestIP:     "10.0.0.1",
		DestPort:   80,
		Protocol:   "TCP",
	}
}

func TestStore_AppendQueryRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := sampleAlert(types.SeverityCritical, "1.2.3.4", "2024-01-01T00:00:00Z")
	id, err := s.Append(in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	out, err := s.Query(Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, in.Timestamp, got.Timestamp)
	assert.Equal(t, in.Severity, got.Severity)
	assert.Equal(t, in.Signature, got.Signature)
	assert.Equal(t, in.SourceIP, got.SourceIP)
	assert.Equal(t, in.SourcePort, got.SourcePort)
	assert.Equal(t, in.DestIP, got.DestIP)
	assert.Equal(t, in.DestPort, got.DestPort)
	assert.Equal(t, in.Protocol, got.Protocol)
}

func TestStore_MonotonicIDsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.Append(sampleAlert(types.SeverityLow, "1.1.1.1", "2024-01-01T00:00:00Z"))
		require.NoError(t, err)
	}

	out, err := s.Query(Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i-1].ID, out[i].ID, "expected newest first")
	}
}

func TestStore_QueryFilters(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append(sampleAlert(types.SeverityCritical, "1.1.1.1", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)
	_, err = s.Append(sampleAlert(types.SeverityLow, "2.2.2.2", "2024-01-02T10:00:00Z"))
	require.NoError(t, err)

	out, err := s.Query(Filter{Severity: "critical"}, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1.1.1.1", out[0].SourceIP)

	// protocol match is case-insensitive
	out, err = s.Query(Filter{Protocol: "tcp"}, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	// source ip filter is a substring match
	out, err = s.Query(Filter{SourceIP: "2.2"}, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.SeverityLow, out[0].Severity)

	// inclusive lexicographic time range
	out, err = s.Query(Filter{From: "2024-01-02T00:00:00Z"}, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2.2.2.2", out[0].SourceIP)

	out, err = s.Query(Filter{To: "2024-01-01T10:00:00Z"}, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1.1.1.1", out[0].SourceIP)

	// no match returns an empty slice, not nil
	out, err = s.Query(Filter{Severity: "info"}, 0)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestStore_LimitClamp(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 60; i++ {
		_, err := s.Append(sampleAlert(types.SeverityLow, "1.1.1.1", "2024-01-01T00:00:00Z"))
		require.NoError(t, err)
	}

	out, err := s.Query(Filter{}, 0)
	require.NoError(t, err)
	assert.Len(t, out, DefaultQueryLimit)

	out, err = s.Query(Filter{}, 10)
	require.NoError(t, err)
	assert.Len(t, out, 10)

	out, err = s.Query(Filter{}, 99999)
	require.NoError(t, err)
	assert.Len(t, out, 60, "clamp to MaxQueryLimit must still return all 60")
}

func TestStore_ReplayAscendingAndCount(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		_, err := s.Append(sampleAlert(types.SeverityMedium, "1.1.1.1", "2024-01-01T00:00:00Z"))
		require.NoError(t, err)
	}

	var ids []int64
	n, err := s.Replay(func(a *types.Alert) { ids = append(ids, a.ID) })
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append(sampleAlert(types.SeverityHigh, "1.1.1.1", "2024-01-01T00:00:00Z"))
	require.NoError(t, err)

	require.NoError(t, s.Reset())

	count, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	out, err := s.ExportAll()
	require.NoError(t, err)
	assert.Empty(t, out)
}
