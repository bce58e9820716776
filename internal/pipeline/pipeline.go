package pipeline

import (
	"log"
	"time"

	"evewatch/internal/aggregate"
	"evewatch/internal/ingest"
	"evewatch/internal/metrics"
	"evewatch/internal/normalize"
	"evewatch/internal/state"
	"evewatch/internal/types"
)

// Publisher fans accepted alerts and refreshed snapshots out to subscribers
type Publisher interface {
	BroadcastAlert(*types.Alert)
	BroadcastMetrics(*types.Snapshot)
}

// Notifier receives every accepted live alert; it decides itself whether the
// severity warrants an outbound notification.
type Notifier interface {
	Notify(*types.Alert)
}

type injectReq struct {
	alert *types.Alert
	done  chan struct{}
}

type resetReq struct {
	done chan struct{}
}

// Pipeline is the single logical writer of the system. Exactly one goroutine
// drives normalize -> append -> apply -> publish, fed by the tailer channel,
// synchronous injections and reset requests; the select loop guarantees the
// three sources never interleave inside one alert's processing.
type Pipeline struct {
	agg      *aggregate.Store
	store    *state.Store
	pub      Publisher
	notifier Notifier

	injects chan injectReq
	resets  chan resetReq
	quit    chan struct{}
	done    chan struct{}
}

func New(agg *aggregate.Store, store *state.Store, pub Publisher, notifier Notifier) *Pipeline {
	return &Pipeline{
		agg:      agg,
		store:    store,
		pub:      pub,
		notifier: notifier,
		injects:  make(chan injectReq),
		resets:   make(chan resetReq),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Rebuild recomputes the in-memory aggregates from the durable log. Run this
// before Start so restart never loses historical truth.
func (p *Pipeline) Rebuild() error {
	n, err := p.store.Replay(func(a *types.Alert) {
		p.agg.Apply(a)
	})
	if err != nil {
		return err
	}
	count, err := p.store.Count()
	if err != nil {
		return err
	}
	if n != count || p.agg.Total() != count {
		log.Printf("[PIPELINE] rebuild mismatch: replayed=%d stored=%d aggregated=%d", n, count, p.agg.Total())
	} else {
		log.Printf("[PIPELINE] rebuilt aggregates from %d stored alerts", n)
	}
	return nil
}

// Start launches the writer loop consuming lines until Stop
func (p *Pipeline) Start(lines <-chan ingest.Line) {
	go p.run(lines)
}

func (p *Pipeline) run(lines <-chan ingest.Line) {
	defer close(p.done)
	for {
		select {
		case ln, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			p.ingestLine(ln)
		case req := <-p.injects:
			p.ingest(req.alert, false)
			close(req.done)
		case req := <-p.resets:
			p.reset()
			close(req.done)
		case <-p.quit:
			return
		}
	}
}

// Stop halts the writer loop. The tailer must be stopped first so no sender
// is left blocked on a full line channel.
func (p *Pipeline) Stop() {
	close(p.quit)
	<-p.done
}

// Inject runs one alert through the writer loop and returns once it has been
// fully ingested. Used by the debug surface and the synthetic generator.
func (p *Pipeline) Inject(a *types.Alert) {
	req := injectReq{alert: a, done: make(chan struct{})}
	select {
	case p.injects <- req:
		<-req.done
	case <-p.quit:
	}
}

// Reset clears the durable log and the aggregates as one serialized turn of
// the writer loop, so it can never interleave with an in-flight apply.
func (p *Pipeline) Reset() {
	req := resetReq{done: make(chan struct{})}
	select {
	case p.resets <- req:
		<-req.done
	case <-p.quit:
	}
}

func (p *Pipeline) ingestLine(ln ingest.Line) {
	metrics.LinesRead.Inc()
	a := normalize.Line(ln.Text, time.Now())
	if a == nil {
		metrics.LinesDropped.Inc()
		return
	}
	p.ingest(a, ln.Replay)
}

func (p *Pipeline) ingest(a *types.Alert, replay bool) {
	id, err := p.store.Append(a)
	if err != nil {
		// durability loss for one record must not halt the stream
		log.Printf("[PIPELINE] append failed: %v", err)
	} else {
		a.ID = id
	}

	p.agg.Apply(a)
	metrics.AlertsAccepted.WithLabelValues(string(a.Severity)).Inc()

	if replay {
		return
	}
	if p.pub != nil {
		p.pub.BroadcastAlert(a)
		p.pub.BroadcastMetrics(p.agg.Snapshot())
	}
	if p.notifier != nil {
		p.notifier.Notify(a)
	}
}

func (p *Pipeline) reset() {
	if err := p.store.Reset(); err != nil {
		log.Printf("[PIPELINE] durable reset failed: %v", err)
		return
	}
	p.agg.Reset()
	metrics.Resets.Inc()
	if p.pub != nil {
		p.pub.BroadcastMetrics(p.agg.Snapshot())
	}
	log.Printf("[PIPELINE] aggregates and durable log reset")
}
