// Package metrics records Conjur client activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/systmms/conjur-go/pkg/conjur"
)

// Collector implements conjur.Observer on top of Prometheus metrics.
type Collector struct {
	tokenFetches *prometheus.CounterVec
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	pages        *prometheus.CounterVec
	resources    *prometheus.CounterVec
}

// New creates a Collector whose metrics are registered on reg. A nil reg
// leaves them unregistered, which is useful when nothing scrapes them.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		tokenFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjur_token_fetch_total",
				Help: "Total number of access token requests",
			},
			[]string{"result"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjur_requests_total",
				Help: "Total number of Conjur API requests by operation and status code",
			},
			[]string{"op", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conjur_request_duration_seconds",
				Help:    "Duration of Conjur API requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"op"},
		),
		pages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjur_resource_pages_total",
				Help: "Total number of resource listing pages fetched",
			},
			[]string{"kind"},
		),
		resources: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conjur_resources_listed_total",
				Help: "Total number of resource ids received from listings",
			},
			[]string{"kind"},
		),
	}
}

// TokenFetched records the outcome of an authenticate call.
func (c *Collector) TokenFetched(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.tokenFetches.WithLabelValues(result).Inc()
}

// RequestCompleted records one HTTP round trip. A zero status code means
// no response was received.
func (c *Collector) RequestCompleted(op string, statusCode int, elapsed time.Duration) {
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	c.requests.WithLabelValues(op, code).Inc()
	c.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// PageFetched records one listing page.
func (c *Collector) PageFetched(kind string, size int) {
	c.pages.WithLabelValues(kind).Inc()
	c.resources.WithLabelValues(kind).Add(float64(size))
}

var _ conjur.Observer = (*Collector)(nil)

// Summary renders every counter series and histogram sample count gathered
// from g as "name{labels} value" lines, sorted by name.
func Summary(g prometheus.Gatherer) ([]string, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var lines []string
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var value float64
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				value = m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			lines = append(lines, fmt.Sprintf("%s%s %g", family.GetName(), formatLabels(m.GetLabel()), value))
		}
	}
	sort.Strings(lines)
	return lines, nil
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
