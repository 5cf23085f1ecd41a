package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/metrics/export/internaldefs"
)

// Source supplies metrics; *authstate.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authstate.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders a Source on demand.
type PrometheusExporter struct {
	source Source
}

func NewPrometheusExporter(engine *authstate.Engine) *PrometheusExporter {
	if engine == nil {
		return &PrometheusExporter{}
	}
	return NewPrometheusExporterFromSource(engine)
}

func NewPrometheusExporterFromSource(source Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render with the exposition content type.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" when metrics are disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	prev := ""
	for _, def := range internaldefs.CounterDefs {
		if def.Name != prev {
			writeHeader(&b, def.Name, def.Help, "counter")
			prev = def.Name
		}
		writeSample(&b, def.Name, def.Label, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeHeader(&b, internaldefs.AuditDroppedName, "Audit events dropped due to dispatcher backpressure.", "counter")
	writeSample(&b, internaldefs.AuditDroppedName, nil, dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name string, l *internaldefs.Label, value uint64) {
	b.WriteString(name)
	if l != nil {
		b.WriteByte('{')
		b.WriteString(l.Name)
		b.WriteString(`="`)
		b.WriteString(escapeLabel(l.Value))
		b.WriteString(`"}`)
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, name+"_bucket", &internaldefs.Label{Name: "le", Value: le}, cumulative[i])
	}
	writeSample(b, name+"_count", nil, cumulative[len(cumulative)-1])
	// Bucket counts carry no durations, so the sum is not tracked.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}

func escapeLabel(v string) string {
	v = escapeHelp(v)
	return strings.ReplaceAll(v, `"`, `\"`)
}
