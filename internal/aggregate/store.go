package aggregate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"evewatch/internal/types"
)

const (
	// RecentCapacity bounds the newest-first recent alert buffer
	RecentCapacity = 100
	// TimelineCapacity bounds the hourly timeline
	TimelineCapacity = 24
	// TopN caps the derived top lists computed on read
	TopN = 10
)

// seededProtocols always appear in the protocol breakdown, even at zero
var seededProtocols = []string{"TCP", "UDP", "ICMP", "HTTP", "HTTPS", "DNS"}

// counterSet tracks counts plus first-seen key order so top-N cuts break
// ties deterministically.
type counterSet struct {
	counts map[string]int
	order  []string
}

func newCounterSet() *counterSet {
	return &counterSet{counts: make(map[string]int)}
}

func (c *counterSet) inc(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

type entry struct {
	key   string
	count int
}

// top returns up to n (key, count) pairs sorted by count descending,
// ties kept in first-seen order.
func (c *counterSet) top(n int) []entry {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, entry{k, c.counts[k]})
	}
	return out
}

// Store holds the rolling aggregates derived from the alert stream. Apply is
// driven by the single ingestion writer; Snapshot and the mutex make the
// counters safe for concurrent readers.
type Store struct {
	mu         sync.Mutex
	total      int
	bySeverity map[types.Severity]int
	byProtocol map[string]int
	sourceIPs  *counterSet
	destIPs    *counterSet
	signatures *counterSet
	recent     []types.Alert // newest first
	timeline   []types.TimelineBucket
	lastUpdate string
}

// NewStore creates an empty aggregate store with seeded breakdown keys
func NewStore() *Store {
	s := &Store{}
	s.init()
	return s
}

// init resets all counters to their seeded zero state. Caller must hold mu
// (or own the store exclusively, as NewStore does).
func (s *Store) init() {
	s.total = 0
	s.bySeverity = make(map[types.Severity]int, len(types.Severities))
	for _, sev := range types.Severities {
		s.bySeverity[sev] = 0
	}
	s.byProtocol = make(map[string]int, len(seededProtocols))
	for _, p := range seededProtocols {
		s.byProtocol[p] = 0
	}
	s.sourceIPs = newCounterSet()
	s.destIPs = newCounterSet()
	s.signatures = newCounterSet()
	s.recent = nil
	s.timeline = nil
	s.lastUpdate = ""
}

// Apply folds one accepted alert into every counter. It must be called from
// a single logical writer; two Apply calls never interleave.
func (s *Store) Apply(a *types.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.bySeverity[a.Severity]++
	s.byProtocol[a.Protocol]++
	s.sourceIPs.inc(a.SourceIP)
	s.destIPs.inc(a.DestIP)
	s.signatures.inc(a.Signature)

	s.recent = append([]types.Alert{*a}, s.recent...)
	if len(s.recent) > RecentCapacity {
		s.recent = s.recent[:RecentCapacity]
	}

	s.bumpTimeline(hourLabel(a.Timestamp))
	s.lastUpdate = time.Now().UTC().Format(time.RFC3339)
}

// bumpTimeline increments the insertion-ordered bucket for label, evicting
// the oldest bucket past capacity. Caller must hold mu.
func (s *Store) bumpTimeline(label string) {
	for i := range s.timeline {
		if s.timeline[i].Time == label {
			s.timeline[i].Count++
			return
		}
	}
	s.timeline = append(s.timeline, types.TimelineBucket{Time: label, Count: 1})
	if len(s.timeline) > TimelineCapacity {
		s.timeline = s.timeline[1:]
	}
}

// Snapshot returns a read-consistent copy of all aggregates with the top-N
// lists computed on read.
func (s *Store) Snapshot() *types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &types.Snapshot{
		TotalAlerts:  s.total,
		BySeverity:   make(map[types.Severity]int, len(s.bySeverity)),
		ByProtocol:   make(map[string]int, len(s.byProtocol)),
		RecentAlerts: make([]types.Alert, len(s.recent)),
		Timeline:     make([]types.TimelineBucket, len(s.timeline)),
		LastUpdate:   s.lastUpdate,
	}
	for k, v := range s.bySeverity {
		snap.BySeverity[k] = v
	}
	for k, v := range s.byProtocol {
		snap.ByProtocol[k] = v
	}
	copy(snap.RecentAlerts, s.recent)
	copy(snap.Timeline, s.timeline)

	snap.TopSignatures = make([]types.SignatureCount, 0, TopN)
	for _, e := range s.signatures.top(TopN) {
		snap.TopSignatures = append(snap.TopSignatures, types.SignatureCount{Signature: e.key, Count: e.count})
	}
	snap.TopSourceIPs = make([]types.IPCount, 0, TopN)
	for _, e := range s.sourceIPs.top(TopN) {
		snap.TopSourceIPs = append(snap.TopSourceIPs, types.IPCount{IP: e.key, Count: e.count})
	}
	snap.TopDestIPs = make([]types.IPCount, 0, TopN)
	for _, e := range s.destIPs.top(TopN) {
		snap.TopDestIPs = append(snap.TopDestIPs, types.IPCount{IP: e.key, Count: e.count})
	}

	return snap
}

// Total returns the monotonic accepted-alert count
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Reset zeroes all counters and clears all collections
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
}

// eveTimeLayout matches Suricata's eve.json timestamp format, which carries
// a zone offset without a colon and so is not RFC3339.
const eveTimeLayout = "2006-01-02T15:04:05.999999-0700"

// hourLabel derives the "HH:00" timeline label from the alert's own
// timestamp so that rebuilding from storage is idempotent. Unparseable
// timestamps fall back to wall clock.
func hourLabel(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t, err = time.Parse(eveTimeLayout, ts)
	}
	if err != nil {
		t = time.Now()
	}
	return fmt.Sprintf("%02d:00", t.Hour())
}
