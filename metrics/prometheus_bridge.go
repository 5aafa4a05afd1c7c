package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusBridge exposes a Registry's metrics through the real
// prometheus/client_golang collection and exposition pipeline, as an
// alternative to PrometheusExporter's hand-rolled text formatting.
type PrometheusBridge struct {
	reg       *Registry
	namespace string
}

// NewPrometheusBridge wraps reg so its metrics can be scraped via the
// official Prometheus client library. namespace, if non-empty, is
// prepended to every metric name as "<namespace>_<metric>".
func NewPrometheusBridge(reg *Registry, namespace string) *PrometheusBridge {
	return &PrometheusBridge{reg: reg, namespace: namespace}
}

// Describe implements prometheus.Collector. The metric set is dynamic
// (registered on first use elsewhere in the process), so no fixed
// descriptors are advertised up front; Collect still emits valid samples.
func (b *PrometheusBridge) Describe(ch chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector, emitting one gauge per counter
// and gauge in the registry, plus five gauges (count/sum/min/max/mean) per
// histogram.
func (b *PrometheusBridge) Collect(ch chan<- prometheus.Metric) {
	for name, v := range b.reg.Snapshot() {
		metricName := name
		if b.namespace != "" {
			metricName = b.namespace + "_" + name
		}
		switch val := v.(type) {
		case int64:
			desc := prometheus.NewDesc(metricName, "guillotine metric "+name, nil, nil)
			m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, float64(val))
			if err == nil {
				ch <- m
			}
		case map[string]interface{}:
			for field, fv := range val {
				fdesc := prometheus.NewDesc(metricName+"_"+field, "guillotine histogram "+name+" "+field, nil, nil)
				fval, ok := toFloat64(fv)
				if !ok {
					continue
				}
				m, err := prometheus.NewConstMetric(fdesc, prometheus.GaugeValue, fval)
				if err == nil {
					ch <- m
				}
			}
		}
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Handler returns an http.Handler serving b's metrics in Prometheus
// exposition format via promhttp, registered on a private registry so it
// never collides with process-wide prometheus state.
func (b *PrometheusBridge) Handler() http.Handler {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(b)
	return promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
}
