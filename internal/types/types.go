package types

// Severity is the normalized alert severity level
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists all levels in descending order of urgency
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Valid reports whether s is one of the five known levels
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Alert is one canonical security event derived from a raw eve.json line.
// Every field is defaulted during normalization; instances are immutable
// after creation except for the storage-assigned ID.
type Alert struct {
	ID         int64    `json:"id,omitempty"`
	Timestamp  string   `json:"timestamp"`
	Severity   Severity `json:"severity"`
	Signature  string   `json:"signature"`
	SourceIP   string   `json:"source_ip"`
	SourcePort int      `json:"source_port"`
	DestIP     string   `json:"dest_ip"`
	DestPort   int      `json:"dest_port"`
	Protocol   string   `json:"protocol"`
}

// SignatureCount is one entry of the top-signatures list
type SignatureCount struct {
	Signature string `json:"signature"`
	Count     int    `json:"count"`
}

// IPCount is one entry of the top source/destination IP lists
type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// TimelineBucket is one hourly bucket of the alert timeline
type TimelineBucket struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// Snapshot is a point-in-time read-only copy of the rolling aggregates.
// Field names match the dashboard wire format.
type Snapshot struct {
	TotalAlerts   int              `json:"totalAlerts"`
	BySeverity    map[Severity]int `json:"alertsBySeverity"`
	ByProtocol    map[string]int   `json:"alertsByProtocol"`
	TopSignatures []SignatureCount `json:"topSignatures"`
	TopSourceIPs  []IPCount        `json:"topSourceIPs"`
	TopDestIPs    []IPCount        `json:"topDestIPs"`
	RecentAlerts  []Alert          `json:"recentAlerts"`
	Timeline      []TimelineBucket `json:"alertsTimeline"`
	LastUpdate    string           `json:"lastUpdate"`
}

// Config represents the application configuration
type Config struct {
	Input struct {
		EveLogPath          string `yaml:"eve_log_path"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
		ReplayLines         int    `yaml:"replay_lines"`
	} `yaml:"input"`

	Server struct {
		Addr      string `yaml:"addr"`
		StaticDir string `yaml:"static_dir"`
		AuthUser  string `yaml:"auth_user"`
		AuthPass  string `yaml:"auth_pass"`
		RateLimit int    `yaml:"rate_limit"` // concurrent in-flight requests, 0 disables
	} `yaml:"server"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Notification struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notification"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Debug struct {
		EnableGenerator          bool `yaml:"enable_generator"`
		GeneratorIntervalSeconds int  `yaml:"generator_interval_seconds"`
	} `yaml:"debug"`
}
