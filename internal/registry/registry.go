package registry

import (
	"fmt"
	"log/slog"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/parser"
	"sonicwall-to-mx/pkg/wellknown"
)

// Registry is the resolved object graph of one export. It is built once and
// only read afterwards.
type Registry struct {
	addr *graph
	svc  *graph

	kinds     map[string]model.ObjectKind
	ipv4      map[string]*model.AddressObject
	ranges    map[string]*model.RangeObject
	fqdns     map[string]*model.FQDNObject
	groups    map[string]*model.Group
	services  map[string][]model.ServiceObject
	svcGroups map[string]*model.ServiceGroup

	zones     []model.Zone
	zoneIndex map[string]int

	unprocessed []model.UnprocessedObject
}

// Build indexes every object, group and zone statement and resolves all
// group memberships. Configured zones come first, in configuration order,
// followed by zones only found in the export.
func Build(stmts []parser.Statement, zones []model.Zone) *Registry {
	r := &Registry{
		addr:      newGraph(),
		svc:       newGraph(),
		kinds:     make(map[string]model.ObjectKind),
		ipv4:      make(map[string]*model.AddressObject),
		ranges:    make(map[string]*model.RangeObject),
		fqdns:     make(map[string]*model.FQDNObject),
		groups:    make(map[string]*model.Group),
		services:  make(map[string][]model.ServiceObject),
		svcGroups: make(map[string]*model.ServiceGroup),
		zoneIndex: make(map[string]int),
	}
	for _, z := range zones {
		r.addZone(z)
	}

	for _, s := range stmts {
		switch st := s.(type) {
		case *parser.AddressStmt:
			if st.IsRange() {
				if r.define(r.addr, st.Name, false, nil, st.Pos) {
					r.kinds[st.Name] = model.KindRange
					r.ranges[st.Name] = &model.RangeObject{Name: st.Name, Start: st.Start, End: st.End, Zone: st.Zone}
				}
				continue
			}
			if r.define(r.addr, st.Name, false, nil, st.Pos) {
				r.kinds[st.Name] = model.KindIPv4
				r.ipv4[st.Name] = &model.AddressObject{Name: st.Name, Prefix: st.Prefix, Zone: st.Zone}
			}
		case *parser.FQDNStmt:
			if r.define(r.addr, st.Name, false, nil, st.Pos) {
				r.kinds[st.Name] = model.KindFQDN
				r.fqdns[st.Name] = &model.FQDNObject{Name: st.Name, Domain: st.Domain, Zone: st.Zone}
			}
		case *parser.GroupStmt:
			if r.define(r.addr, st.Name, true, st.Members, st.Pos) {
				r.kinds[st.Name] = model.KindGroup
				r.groups[st.Name] = &model.Group{Name: st.Name, Family: st.Family, Members: st.Members}
			}
		case *parser.ServiceStmt:
			if r.define(r.svc, st.Name, false, nil, st.Pos) {
				r.services[st.Name] = []model.ServiceObject{{Name: st.Name, Protocol: st.Protocol, StartPort: st.StartPort, EndPort: st.EndPort}}
			}
		case *parser.ServiceGroupStmt:
			if r.define(r.svc, st.Name, true, st.Members, st.Pos) {
				r.svcGroups[st.Name] = &model.ServiceGroup{Name: st.Name, Members: st.Members}
			}
		case *parser.ZoneStmt:
			if _, ok := r.zoneIndex[st.Name]; !ok {
				r.addZone(model.Zone{Name: st.Name})
			}
		}
	}

	r.record(r.addr.resolve(resolver{reject: rejectFamily}))
	r.record(r.svc.resolve(resolver{fallback: r.builtinService}))

	slog.Debug("registry built",
		"addresses", len(r.ipv4)+len(r.ranges)+len(r.fqdns),
		"groups", len(r.groups),
		"services", len(r.services),
		"serviceGroups", len(r.svcGroups),
		"zones", len(r.zones),
		"unprocessed", len(r.unprocessed))
	return r
}

func (r *Registry) define(g *graph, name string, group bool, members []model.MemberRef, pos parser.Pos) bool {
	if _, ok := g.add(name, group, members); !ok {
		slog.Debug("duplicate definition ignored", "name", name, "line", pos.Line)
		r.unprocessed = append(r.unprocessed, model.UnprocessedObject{Name: name, Reason: ReasonDuplicate})
		return false
	}
	return true
}

func (r *Registry) addZone(z model.Zone) {
	if _, ok := r.zoneIndex[z.Name]; ok {
		return
	}
	r.zoneIndex[z.Name] = len(r.zones)
	r.zones = append(r.zones, z)
}

func (r *Registry) record(issues []issue) {
	for _, is := range issues {
		r.unprocessed = append(r.unprocessed, model.UnprocessedObject{Name: is.member, Group: is.group, Reason: is.reason})
	}
}

// rejectFamily refuses address objects outside the IPv4 and FQDN families.
// Nested groups are containers and are always followed.
func rejectFamily(m model.MemberRef) string {
	if m.Group {
		return ""
	}
	switch m.Family {
	case "", model.FamilyIPv4, model.FamilyFQDN:
		return ""
	}
	return fmt.Sprintf(reasonUnsupported, m.Family)
}

func (r *Registry) builtinService(name string) bool {
	objs, ok := builtinObjects(name)
	if ok {
		r.services[name] = objs
	}
	return ok
}

func builtinObjects(name string) ([]model.ServiceObject, bool) {
	entries, ok := wellknown.GetService(name)
	if !ok {
		return nil, false
	}
	objs := make([]model.ServiceObject, 0, len(entries))
	for _, e := range entries {
		objs = append(objs, model.ServiceObject{Name: name, Protocol: e.Protocol, StartPort: e.StartPort, EndPort: e.EndPort})
	}
	return objs, true
}

func (r *Registry) Zones() []model.Zone {
	return r.zones
}

func (r *Registry) Zone(name string) (model.Zone, bool) {
	i, ok := r.zoneIndex[name]
	if !ok {
		return model.Zone{}, false
	}
	return r.zones[i], true
}

// Kind reports what an address-namespace name is bound to.
func (r *Registry) Kind(name string) (model.ObjectKind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

func (r *Registry) Address(name string) (*model.AddressObject, bool) {
	o, ok := r.ipv4[name]
	return o, ok
}

func (r *Registry) Range(name string) (*model.RangeObject, bool) {
	o, ok := r.ranges[name]
	return o, ok
}

func (r *Registry) FQDN(name string) (*model.FQDNObject, bool) {
	o, ok := r.fqdns[name]
	return o, ok
}

func (r *Registry) Group(name string) (*model.Group, bool) {
	g, ok := r.groups[name]
	return g, ok
}

// Members returns the resolved leaves of a group: ordered, de-duplicated and
// free of nested groups. Unresolved members are absent.
func (r *Registry) Members(group string) ([]model.Leaf, bool) {
	i, ok := r.addr.lookup(group)
	if !ok || !r.addr.nodes[i].group {
		return nil, false
	}
	leaves := make([]model.Leaf, 0, len(r.addr.nodes[i].leaves))
	for _, j := range r.addr.nodes[i].leaves {
		name := r.addr.nodes[j].name
		leaves = append(leaves, model.Leaf{Name: name, Kind: r.kinds[name]})
	}
	return leaves, true
}

// Services flattens a service reference into its service objects, in
// definition order and without repeats. Names not defined in the export
// fall back to built-in services.
func (r *Registry) Services(ref model.ServiceRef) ([]model.ServiceObject, bool) {
	if ref.Any {
		return []model.ServiceObject{{Name: "any", Protocol: model.Any}}, true
	}
	i, ok := r.svc.lookup(ref.Name)
	if !ok {
		if ref.Group {
			return nil, false
		}
		return builtinObjects(ref.Name)
	}
	n := r.svc.nodes[i]
	if !n.group {
		return r.services[n.name], true
	}
	var out []model.ServiceObject
	seen := make(map[model.ServiceObject]bool)
	for _, j := range n.leaves {
		for _, so := range r.services[r.svc.nodes[j].name] {
			if !seen[so] {
				seen[so] = true
				out = append(out, so)
			}
		}
	}
	return out, len(out) > 0
}

// Unprocessed lists duplicate definitions followed by every member that
// could not be bound, in resolution order.
func (r *Registry) Unprocessed() []model.UnprocessedObject {
	return r.unprocessed
}
