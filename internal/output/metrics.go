package output

import (
	"github.com/prometheus/client_golang/prometheus"

	"sonicwall-to-mx/internal/engine"
	"sonicwall-to-mx/internal/model"
)

// Metrics holds the counters of a run. They are written once to a
// node_exporter textfile when the run ends.
type Metrics struct {
	statements         *prometheus.CounterVec
	parseFailures      prometheus.Counter
	unprocessedObjects prometheus.Counter
	unprocessedRules   prometheus.Counter
	derivedGroups      *prometheus.CounterVec
	translatedRules    *prometheus.CounterVec
	zoneDefaults       prometheus.Counter

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sw2mx_statements_total",
				Help: "Statements parsed from the export by kind",
			},
			[]string{"kind"},
		),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sw2mx_parse_failures_total",
			Help: "Recognized statements that could not be parsed",
		}),
		unprocessedObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sw2mx_unprocessed_objects_total",
			Help: "Objects and group members left out of the translation",
		}),
		unprocessedRules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sw2mx_unprocessed_rules_total",
			Help: "Rules that produced no destination rule",
		}),
		derivedGroups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sw2mx_policy_groups_total",
				Help: "Destination policy object groups by split tag",
			},
			[]string{"tag"},
		),
		translatedRules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sw2mx_rules_translated_total",
				Help: "Destination rules emitted by rule set",
			},
			[]string{"ruleset"},
		),
		zoneDefaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sw2mx_zone_default_rules_total",
			Help: "Any/any/any rules folded into the zone matrix",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.statements,
		m.parseFailures,
		m.unprocessedObjects,
		m.unprocessedRules,
		m.derivedGroups,
		m.translatedRules,
		m.zoneDefaults,
	)
	return m
}

// Observe adds the counts of one run.
func (m *Metrics) Observe(res *engine.Result) {
	for _, s := range res.Statements {
		m.statements.WithLabelValues(s.Kind()).Inc()
	}
	m.parseFailures.Add(float64(len(res.Failures)))
	m.unprocessedObjects.Add(float64(len(res.UnprocessedObjects())))
	m.unprocessedRules.Add(float64(len(res.UnprocessedRules())))
	for _, g := range res.Plan.Groups {
		m.derivedGroups.WithLabelValues(tagLabel(g.Tag)).Inc()
	}
	for _, set := range []model.RuleSet{model.Outbound, model.Inbound, model.SiteToSite} {
		m.translatedRules.WithLabelValues(string(set)).Add(float64(len(res.Translation.Rules(set))))
	}
	m.zoneDefaults.Add(float64(res.Translation.ZoneDefaults))
}

func tagLabel(tag model.SplitTag) string {
	switch tag {
	case model.TagRange:
		return "range"
	case model.TagIPv4:
		return "ipv4_split"
	case model.TagFQDN:
		return "fqdn_split"
	}
	return "none"
}

// WriteFile writes the counters in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
