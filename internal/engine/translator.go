package engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/registry"
)

// Options carries the feature flags and keyword lists for one run.
type Options struct {
	IntelligentMapping   bool
	DefaultInterZoneDeny bool
	Inbound              []string
	SiteToSite           []string
	Syslog               bool
	// RejectFQDNSource drops FQDN source variants; the destination accepts
	// FQDN objects as destinations only.
	RejectFQDNSource bool
}

// Classify assigns a rule to a destination rule set. Site-to-site wins over
// inbound; everything else is outbound. Zone names match keywords exactly,
// ignoring case.
func Classify(srcZone, dstZone string, opts Options) model.RuleSet {
	if !opts.IntelligentMapping {
		return model.Outbound
	}
	if matchKeyword(srcZone, opts.SiteToSite) || matchKeyword(dstZone, opts.SiteToSite) {
		return model.SiteToSite
	}
	if matchKeyword(srcZone, opts.Inbound) {
		return model.Inbound
	}
	return model.Outbound
}

func matchKeyword(zone string, keywords []string) bool {
	for _, k := range keywords {
		if strings.EqualFold(zone, k) {
			return true
		}
	}
	return false
}

// Translation holds the translated rules per rule set, each in the order of
// the rules they came from.
type Translation struct {
	Outbound    []model.TranslatedRule
	Inbound     []model.TranslatedRule
	SiteToSite  []model.TranslatedRule
	Unprocessed []model.UnprocessedRule
	// ZoneDefaults counts any/any/any rules left to the zone matrix.
	ZoneDefaults int
}

func (t *Translation) Rules(set model.RuleSet) []model.TranslatedRule {
	switch set {
	case model.Inbound:
		return t.Inbound
	case model.SiteToSite:
		return t.SiteToSite
	}
	return t.Outbound
}

func (t *Translation) Len() int {
	return len(t.Outbound) + len(t.Inbound) + len(t.SiteToSite)
}

func (t *Translation) add(r model.TranslatedRule) {
	switch r.RuleSet {
	case model.Inbound:
		t.Inbound = append(t.Inbound, r)
	case model.SiteToSite:
		t.SiteToSite = append(t.SiteToSite, r)
	default:
		t.Outbound = append(t.Outbound, r)
	}
}

type Translator struct {
	splitter *Splitter
	reg      *registry.Registry
	opts     Options
}

func NewTranslator(splitter *Splitter, reg *registry.Registry, opts Options) *Translator {
	return &Translator{splitter: splitter, reg: reg, opts: opts}
}

// Translate emits one destination rule per source variant, destination
// variant and service bucket. With a single service bucket an ACL rule
// yields no rule (unresolvable), one (homogeneous) or two (mixed IPv4/FQDN)
// rules; extra buckets multiply that count.
func (t *Translator) Translate(rules []model.ACLRule) *Translation {
	out := &Translation{}
	for i := range rules {
		rule := &rules[i]
		if rule.IsZoneDefault() {
			out.ZoneDefaults++
			continue
		}
		translated, reason := t.translate(rule)
		if reason != "" {
			slog.Info("rule not translated", "rule", rule.ID, "line", rule.Line, "reason", reason)
			out.Unprocessed = append(out.Unprocessed, model.UnprocessedRule{Text: rule.Text, Reason: reason})
			continue
		}
		for _, r := range translated {
			out.add(r)
		}
	}
	return out
}

func (t *Translator) translate(rule *model.ACLRule) ([]model.TranslatedRule, string) {
	if rule.SrcPort != "" && rule.SrcPort != "any" {
		return nil, fmt.Sprintf("source port %s not supported", rule.SrcPort)
	}

	src := t.splitter.Split(rule.Src)
	if len(src) == 0 {
		return nil, fmt.Sprintf("source %s resolves to no valid entries", rule.Src)
	}
	if t.opts.RejectFQDNSource {
		src = dropFQDN(src)
		if len(src) == 0 {
			return nil, "FQDN source address not supported"
		}
	}
	dst := t.splitter.Split(rule.Dst)
	if len(dst) == 0 {
		return nil, fmt.Sprintf("destination %s resolves to no valid entries", rule.Dst)
	}
	svcs, ok := t.reg.Services(rule.Service)
	if !ok {
		return nil, fmt.Sprintf("service %s resolves to no valid entries", rule.Service)
	}
	buckets := combineServices(svcs)

	set := Classify(rule.SrcZone, rule.DstZone, t.opts)
	var out []model.TranslatedRule
	for _, s := range src {
		for _, d := range dst {
			tags := splitTags(s.Tag, d.Tag)
			for _, b := range buckets {
				out = append(out, model.TranslatedRule{
					RuleSet:       set,
					Policy:        rule.Action,
					Protocol:      b.protocol,
					SrcCidr:       s.Expr,
					DestCidr:      d.Expr,
					SrcPort:       "any",
					DestPort:      b.ports,
					Comment:       ruleComment(rule, tags),
					SyslogEnabled: t.opts.Syslog,
					SplitTags:     tags,
					Origin:        rule,
				})
			}
		}
	}
	return out, ""
}

func dropFQDN(vs []Variant) []Variant {
	var kept []Variant
	for _, v := range vs {
		if !v.FQDN {
			kept = append(kept, v)
		}
	}
	return kept
}

func splitTags(tags ...model.SplitTag) []model.SplitTag {
	var out []model.SplitTag
	for _, tag := range tags {
		if tag != model.TagNone {
			out = append(out, tag)
		}
	}
	return out
}

// ruleComment keeps the export comment and appends the tags of derived
// groups so each destination rule can be traced back.
func ruleComment(rule *model.ACLRule, tags []model.SplitTag) string {
	comment := rule.Comment
	if comment == "" {
		comment = "rule " + rule.ID
	}
	for _, tag := range tags {
		comment += " " + string(tag)
	}
	return comment
}

type serviceBucket struct {
	protocol model.Protocol
	ports    string
}

// combineServices folds service objects into destination rule buckets:
// port ranges stay separate, single TCP ports are joined into one bucket,
// single UDP ports into another, and ICMP needs no ports. Any service makes
// the whole set any.
func combineServices(svcs []model.ServiceObject) []serviceBucket {
	var (
		out         []serviceBucket
		tcp, udp    []string
		icmp, icmp6 bool
		seen        = make(map[serviceBucket]bool)
	)
	for _, s := range svcs {
		switch s.Protocol {
		case model.Any:
			return []serviceBucket{{protocol: model.Any, ports: "any"}}
		case model.ICMP:
			icmp = true
		case model.ICMP6:
			icmp6 = true
		case model.TCP, model.UDP:
			if s.StartPort != s.EndPort {
				b := serviceBucket{protocol: s.Protocol, ports: s.Port()}
				if !seen[b] {
					seen[b] = true
					out = append(out, b)
				}
				continue
			}
			port := strconv.Itoa(s.StartPort)
			key := serviceBucket{protocol: s.Protocol, ports: port}
			if seen[key] {
				continue
			}
			seen[key] = true
			if s.Protocol == model.TCP {
				tcp = append(tcp, port)
			} else {
				udp = append(udp, port)
			}
		}
	}
	if len(tcp) > 0 {
		out = append(out, serviceBucket{protocol: model.TCP, ports: strings.Join(tcp, ",")})
	}
	if len(udp) > 0 {
		out = append(out, serviceBucket{protocol: model.UDP, ports: strings.Join(udp, ",")})
	}
	if icmp {
		out = append(out, serviceBucket{protocol: model.ICMP, ports: "any"})
	}
	if icmp6 {
		out = append(out, serviceBucket{protocol: model.ICMP6, ports: "any"})
	}
	return out
}
