package engine

import (
	"log/slog"
	"strconv"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/parser"
	"sonicwall-to-mx/internal/registry"
)

// ParseRules turns rule statements into ACL rules in export order. Disabled
// rules are dropped without a trace. Rules without an export id get their
// 1-based position among all rule statements.
//
// References are checked against the registry for logging only; a rule that
// names a missing zone or object is kept and left to the later stages.
func ParseRules(stmts []*parser.RuleStmt, reg *registry.Registry) []model.ACLRule {
	rules := make([]model.ACLRule, 0, len(stmts))
	for i, s := range stmts {
		if !s.Enabled {
			continue
		}
		id := s.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		for _, zone := range []string{s.SrcZone, s.DstZone} {
			if _, ok := reg.Zone(zone); !ok {
				slog.Debug("rule references unknown zone", "rule", id, "zone", zone)
			}
		}
		for _, ref := range []model.AddressRef{s.Src, s.Dst} {
			if _, ok := reg.Kind(ref.Name); !ref.Any && !ok {
				slog.Debug("rule references undefined address", "rule", id, "ref", ref.String())
			}
		}

		rules = append(rules, model.ACLRule{
			ID:      id,
			Text:    s.Text,
			Line:    s.Line,
			SrcZone: s.SrcZone,
			DstZone: s.DstZone,
			Src:     s.Src,
			Dst:     s.Dst,
			Service: s.Service,
			SrcPort: s.SrcPort,
			Action:  s.Action,
			Active:  true,
			Comment: s.Comment,
		})
	}
	return rules
}
