package engine

import "sonicwall-to-mx/internal/model"

type zonePair struct {
	src, dst string
}

// Matrix is the default action for every ordered pair of distinct zones.
type Matrix struct {
	zones []model.Zone
	deny  map[zonePair]bool
}

// BuildMatrix marks a pair Deny when an active any/any/any deny rule exists
// between the two zones. Every other pair is Allow.
func BuildMatrix(zones []model.Zone, rules []model.ACLRule) *Matrix {
	known := make(map[string]bool, len(zones))
	for _, z := range zones {
		known[z.Name] = true
	}
	m := &Matrix{zones: zones, deny: make(map[zonePair]bool)}
	for i := range rules {
		r := &rules[i]
		if !r.Active || !r.IsZoneDefault() || r.Action != model.Deny {
			continue
		}
		if r.SrcZone == r.DstZone || !known[r.SrcZone] || !known[r.DstZone] {
			continue
		}
		m.deny[zonePair{r.SrcZone, r.DstZone}] = true
	}
	return m
}

func (m *Matrix) Zones() []model.Zone {
	return m.zones
}

// Action returns the default action between two zones. The diagonal and
// unknown zones have none.
func (m *Matrix) Action(src, dst string) (model.Action, bool) {
	if src == dst || !m.has(src) || !m.has(dst) {
		return "", false
	}
	if m.deny[zonePair{src, dst}] {
		return model.Deny, true
	}
	return model.Allow, true
}

func (m *Matrix) has(name string) bool {
	for _, z := range m.zones {
		if z.Name == name {
			return true
		}
	}
	return false
}

// Entries lists the N*(N-1) off-diagonal cells, row by row.
func (m *Matrix) Entries() []model.ZoneTrafficEntry {
	entries := make([]model.ZoneTrafficEntry, 0, len(m.zones)*len(m.zones))
	for _, src := range m.zones {
		for _, dst := range m.zones {
			if src.Name == dst.Name {
				continue
			}
			action, _ := m.Action(src.Name, dst.Name)
			entries = append(entries, model.ZoneTrafficEntry{SrcZone: src.Name, DstZone: dst.Name, Action: action})
		}
	}
	return entries
}

// DefaultDenyRules emits one outbound deny rule per Deny pair whose zones
// both map to a local VLAN. Pairs without a VLAN stay in the matrix only.
func (m *Matrix) DefaultDenyRules(syslog bool) []model.TranslatedRule {
	var rules []model.TranslatedRule
	for _, src := range m.zones {
		if src.VLAN == "" {
			continue
		}
		for _, dst := range m.zones {
			if dst.VLAN == "" || src.Name == dst.Name || !m.deny[zonePair{src.Name, dst.Name}] {
				continue
			}
			rules = append(rules, model.TranslatedRule{
				RuleSet:       model.Outbound,
				Policy:        model.Deny,
				Protocol:      model.Any,
				SrcCidr:       model.AddressExpr{VLAN: src.VLAN},
				DestCidr:      model.AddressExpr{VLAN: dst.VLAN},
				SrcPort:       "any",
				DestPort:      "any",
				Comment:       "Any Any Inter-zone rule",
				SyslogEnabled: syslog,
			})
		}
	}
	return rules
}
