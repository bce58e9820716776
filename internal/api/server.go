package api

import (
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"evewatch/internal/aggregate"
	"evewatch/internal/state"
	"evewatch/internal/types"
	"evewatch/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gwebsocket "github.com/gorilla/websocket"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Pipeline is the slice of the ingestion writer the API drives: the
// combined reset and the debug injection path, both serialized against
// tail ingestion.
type Pipeline interface {
	Reset()
	Inject(*types.Alert)
}

// Server is the read-mostly HTTP surface: aggregate queries, durable log
// queries, exports, websocket upgrades, and the admin/debug endpoints.
type Server struct {
	agg       *aggregate.Store
	store     *state.Store
	hub       *ws.Hub
	pipe      Pipeline
	staticDir string
	authUser  string
	authPass  string
	rateLimit int
}

func NewServer(agg *aggregate.Store, store *state.Store, hub *ws.Hub, pipe Pipeline, cfg *types.Config) *Server {
	return &Server{
		agg:       agg,
		store:     store,
		hub:       hub,
		pipe:      pipe,
		staticDir: cfg.Server.StaticDir,
		authUser:  cfg.Server.AuthUser,
		authPass:  cfg.Server.AuthPass,
		rateLimit: cfg.Server.RateLimit,
	}
}

// Router assembles the chi route tree
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.rateLimit > 0 {
		r.Use(middleware.Throttle(s.rateLimit))
	}

	r.Get("/api/metrics", s.handleMetrics)
	r.Get("/api/alerts", s.handleAlerts)
	r.Get("/api/alerts/export", s.handleExport)

	// admin surface: state-changing endpoints, basic auth when configured
	r.Group(func(r chi.Router) {
		if s.authUser != "" {
			r.Use(middleware.BasicAuth("evewatch", map[string]string{s.authUser: s.authPass}))
		}
		r.Post("/api/reset", s.handleReset)
		r.Post("/api/debug/alert", s.handleInject)
	})

	r.Get("/ws", s.handleWebSocket)

	if s.staticDir != "" {
		fs := http.FileServer(http.Dir(s.staticDir))
		r.Handle("/*", fs)
	}

	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.agg.Snapshot())
}

// handleAlerts serves filtered durable log queries. Invalid filter values
// are clamped or ignored so the read path always answers.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	f := state.Filter{
		Protocol: q.Get("protocol"),
		SourceIP: q.Get("source_ip"),
		DestIP:   q.Get("dest_ip"),
		From:     q.Get("from"),
		To:       q.Get("to"),
	}
	if sev := types.Severity(q.Get("severity")); sev.Valid() {
		f.Severity = string(sev)
	}

	alerts, err := s.store.Query(f, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, alerts)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ExportAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="alerts.csv"`)
		cw := csv.NewWriter(w)
		cw.Write([]string{"id", "timestamp", "severity", "signature", "source_ip", "source_port", "dest_ip", "dest_port", "protocol"})
		for _, a := range alerts {
			cw.Write([]string{
				strconv.FormatInt(a.ID, 10), a.Timestamp, string(a.Severity), a.Signature,
				a.SourceIP, strconv.Itoa(a.SourcePort), a.DestIP, strconv.Itoa(a.DestPort), a.Protocol,
			})
		}
		cw.Flush()
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="alerts.json"`)
	writeJSON(w, alerts)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.pipe.Reset()
	writeJSON(w, map[string]bool{"success": true})
}

// handleInject accepts a partial alert body and runs it through the same
// serialized ingestion path as tailed lines. Debug/test surface only.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var a types.Alert
	if r.Body != nil {
		// decode errors leave the zero value; every field has a default
		json.NewDecoder(r.Body).Decode(&a)
	}
	if !a.Severity.Valid() {
		a.Severity = types.SeverityMedium
	}
	if a.Timestamp == "" {
		a.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if a.Signature == "" {
		a.Signature = "Manually injected alert"
	}
	if a.SourceIP == "" {
		a.SourceIP = "127.0.0.1"
	}
	if a.DestIP == "" {
		a.DestIP = "127.0.0.1"
	}
	// injected alerts obey the same canonical shape as tailed ones
	a.Protocol = strings.ToUpper(strings.TrimSpace(a.Protocol))
	if a.Protocol == "" {
		a.Protocol = "TCP"
	}
	if a.SourcePort < 0 || a.SourcePort > 65535 {
		a.SourcePort = 0
	}
	if a.DestPort < 0 || a.DestPort > 65535 {
		a.DestPort = 0
	}
	a.ID = 0

	s.pipe.Inject(&a)
	writeJSON(w, a)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[API] websocket upgrade failed: %v", err)
		return
	}
	client := ws.NewClient(s.hub, conn)
	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode failed: %v", err)
	}
}
