// Package metrics provides Prometheus metrics for FTP client sessions.
//
// All methods are safe on a nil *Metrics, which records nothing. This lets
// the client run with or without a registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one client.
type Metrics struct {
	commands  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg
// returns nil (metrics disabled). Collectors that are already registered
// (several clients sharing one registry) are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpclient",
			Name:      "commands_total",
			Help:      "FTP control commands by verb and reply class.",
		}, []string{"verb", "class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ftpclient",
			Name:      "command_duration_seconds",
			Help:      "Time from sending a command to receiving its reply.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpclient",
			Name:      "transfers_total",
			Help:      "Data transfers by operation and result.",
		}, []string{"op", "result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpclient",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved over data connections.",
		}, []string{"direction"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ftpclient",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of data transfers.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"op"}),
	}

	var err error
	if m.commands, err = register(reg, m.commands); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.transfers, err = register(reg, m.transfers); err != nil {
		return nil, err
	}
	if m.bytes, err = register(reg, m.bytes); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// knownVerbs are the commands recorded under their own label. Anything
// else, such as a raw command, is recorded as "OTHER".
var knownVerbs = map[string]bool{
	"USER": true, "PASS": true, "AUTH": true, "PBSZ": true, "PROT": true,
	"TYPE": true, "EPSV": true, "PASV": true, "PORT": true, "EPRT": true,
	"STOR": true, "RETR": true, "LIST": true, "MKD": true, "RMD": true,
	"DELE": true, "RNFR": true, "RNTO": true, "SIZE": true, "QUIT": true,
}

func verbLabel(verb string) string {
	if knownVerbs[verb] {
		return verb
	}
	return "OTHER"
}

// ObserveCommand records one command/reply round trip. code is 0 when no
// reply was received.
func (m *Metrics) ObserveCommand(verb string, code int, d time.Duration) {
	if m == nil {
		return
	}
	verb = verbLabel(verb)
	class := "error"
	if code > 0 {
		class = strconv.Itoa(code/100) + "xx"
	}
	m.commands.WithLabelValues(verb, class).Inc()
	m.latency.WithLabelValues(verb).Observe(d.Seconds())
}

// ObserveTransfer records a finished transfer.
func (m *Metrics) ObserveTransfer(op string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.transfers.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// AddBytes counts bytes sent ("upload") or received ("download").
func (m *Metrics) AddBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
