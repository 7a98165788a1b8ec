package core

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Process-wide metrics (Prometheus exposition via metrics.WritePrometheus)
// --------------------------------------------------------------------------

var (
	commitsTotal          = metrics.NewCounter(`ekv_commits_total`)
	rollbacksTotal        = metrics.NewCounter(`ekv_rollbacks_total`)
	mutationsTotal        = metrics.NewCounter(`ekv_mutations_total`)
	readTxnsTotal         = metrics.NewCounter(`ekv_read_transactions_total`)
	hookFailuresTotal     = metrics.NewCounter(`ekv_hook_failures_total`)
	codecErrorsTotal      = metrics.NewCounter(`ekv_codec_errors_total`)
	registrationsOK       = metrics.NewCounter(`ekv_extension_registrations_total{result="success"}`)
	registrationsFailed   = metrics.NewCounter(`ekv_extension_registrations_total{result="failure"}`)
	unregistrationsTotal  = metrics.NewCounter(`ekv_extension_unregistrations_total`)
	commitDuration        = metrics.NewHistogram(`ekv_commit_duration_seconds`)
	registrationDuration  = metrics.NewHistogram(`ekv_extension_registration_duration_seconds`)
	openConnectionsGlobal atomic.Int64
)

func init() {
	metrics.NewGauge(`ekv_open_connections`, func() float64 {
		return float64(openConnectionsGlobal.Load())
	})
}

// --------------------------------------------------------------------------
// Per-database metrics
// --------------------------------------------------------------------------

// dbMetrics holds the timers of one database
type dbMetrics struct {
	registry  gometrics.Registry
	commit    gometrics.Timer
	rollbacks gometrics.Counter
}

func newDBMetrics() *dbMetrics {
	registry := gometrics.NewRegistry()
	return &dbMetrics{
		registry:  registry,
		commit:    gometrics.GetOrRegisterTimer("commit", registry),
		rollbacks: gometrics.GetOrRegisterCounter("rollbacks", registry),
	}
}

func (m *dbMetrics) hookTimer(name string) gometrics.Timer {
	return gometrics.GetOrRegisterTimer("hook."+name, m.registry)
}

func (m *dbMetrics) hookFailures(name string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter("hook_failures."+name, m.registry)
}

// HookStats summarizes the OnMutation calls of one extension
type HookStats struct {
	Calls    int64
	Failures int64
	Mean     time.Duration
	P99      time.Duration
}

// Stats is a point-in-time summary of a database
type Stats struct {
	Path            string
	Engine          string
	ObjectCodec     string
	MetadataCodec   string
	OpenConnections int
	Extensions      []string // In registration order
	Commits         int64
	Rollbacks       int64
	CommitMean      time.Duration
	CommitP99       time.Duration
	Hooks           map[string]HookStats
}

// String returns a formatted string representation of the stats
func (s Stats) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Database")
	addField("Path", s.Path)
	addField("Engine", s.Engine)
	addField("Object Codec", s.ObjectCodec)
	addField("Metadata Codec", s.MetadataCodec)
	addField("Open Connections", fmt.Sprintf("%d", s.OpenConnections))

	addSection("Transactions")
	addField("Commits", fmt.Sprintf("%d", s.Commits))
	addField("Rollbacks", fmt.Sprintf("%d", s.Rollbacks))
	addField("Commit Mean", s.CommitMean.String())
	addField("Commit P99", s.CommitP99.String())

	addSection("Extensions")
	if len(s.Extensions) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, name := range s.Extensions {
		h := s.Hooks[name]
		addField(name, fmt.Sprintf("%d calls, %d failures, mean %s, p99 %s", h.Calls, h.Failures, h.Mean, h.P99))
	}

	return sb.String()
}
