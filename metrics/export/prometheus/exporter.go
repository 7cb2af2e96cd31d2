package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/internaldefs"
)

// Source is what the exporter reads on every scrape. *goIdentity.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in the Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New returns an exporter reading from engine.
func New(engine *goIdentity.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource returns an exporter reading from any Source.
func NewFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render on every request.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" when metrics are disabled and
// no audit event was dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	w := textWriter{buf: make([]byte, 0, 4096)}
	for _, def := range internaldefs.CounterDefs {
		w.family(def.Name, def.Help, "counter")
		w.sample(def.Name, "", snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.Cumulative(snapshot.Histograms[def.ID])
		w.family(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			w.sample(def.Name+"_bucket", le, cumulative[i])
		}
		w.sample(def.Name+"_count", "", cumulative[len(cumulative)-1])
		// The engine keeps bucket counts only.
		w.sample(def.Name+"_sum", "", 0)
	}
	w.family("goidentity_audit_dropped_total", "Audit events dropped on a full buffer.", "counter")
	w.sample("goidentity_audit_dropped_total", "", dropped)

	return string(w.buf)
}

// textWriter appends text exposition lines to buf.
type textWriter struct {
	buf []byte
}

var helpEscaper = strings.NewReplacer("\\", "\\\\", "\n", "\\n")

func (w *textWriter) family(name, help, kind string) {
	w.buf = append(w.buf, "# HELP "...)
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, ' ')
	w.buf = append(w.buf, helpEscaper.Replace(help)...)
	w.buf = append(w.buf, "\n# TYPE "...)
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, ' ')
	w.buf = append(w.buf, kind...)
	w.buf = append(w.buf, '\n')
}

// sample writes one line. A non-empty le becomes the only label.
func (w *textWriter) sample(name, le string, value uint64) {
	w.buf = append(w.buf, name...)
	if le != "" {
		w.buf = append(w.buf, `{le="`...)
		w.buf = append(w.buf, le...)
		w.buf = append(w.buf, `"}`...)
	}
	w.buf = append(w.buf, ' ')
	w.buf = strconv.AppendUint(w.buf, value, 10)
	w.buf = append(w.buf, '\n')
}
