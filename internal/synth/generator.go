package synth

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"evewatch/internal/types"
)

// Injector feeds one alert through the serialized ingestion path
type Injector interface {
	Inject(*types.Alert)
}

var signatures = []string{
	"ET SCAN Nmap Scripting Engine User-Agent Detected",
	"ET POLICY SSH Brute Force Attempt",
	"ET MALWARE Possible Trojan Download",
	"ET DOS Possible SYN Flood",
	"ET WEB_SERVER SQL Injection Attempt",
	"ET EXPLOIT Possible CVE Exploitation",
	"GPL ICMP Echo Request Sweep",
}

var protocols = []string{"TCP", "UDP", "ICMP", "HTTP", "HTTPS", "DNS"}

// Generator periodically injects randomized alerts, useful for exercising
// the pipeline and dashboard without a live Suricata source.
type Generator struct {
	injector Injector
	interval time.Duration
	rng      *rand.Rand
	quit     chan struct{}
	done     chan struct{}
}

func NewGenerator(injector Injector, interval time.Duration) *Generator {
	return &Generator{
		injector: injector,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (g *Generator) Start() {
	log.Printf("[SYNTH] generating a synthetic alert every %s", g.interval)
	go g.loop()
}

func (g *Generator) Stop() {
	close(g.quit)
	<-g.done
}

func (g *Generator) loop() {
	defer close(g.done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.injector.Inject(g.randomAlert())
		case <-g.quit:
			return
		}
	}
}

func (g *Generator) randomAlert() *types.Alert {
	return &types.Alert{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Severity:   types.Severities[g.rng.Intn(len(types.Severities))],
		Signature:  signatures[g.rng.Intn(len(signatures))],
		SourceIP:   fmt.Sprintf("10.%d.%d.%d", g.rng.Intn(256), g.rng.Intn(256), 1+g.rng.Intn(254)),
		SourcePort: 1024 + g.rng.Intn(64511),
		DestIP:     fmt.Sprintf("192.168.1.%d", 1+g.rng.Intn(254)),
		DestPort:   []int{22, 53, 80, 443, 3306, 8080}[g.rng.Intn(6)],
		Protocol:   protocols[g.rng.Intn(len(protocols))],
	}
}
