package engine

import (
	"log/slog"
	"strconv"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/registry"
	"sonicwall-to-mx/internal/utils"
)

// Variant is one destination-compatible form of an address reference.
type Variant struct {
	Expr model.AddressExpr
	Tag  model.SplitTag
	FQDN bool
}

type derivedKey struct {
	name string
	tag  model.SplitTag
}

// Splitter maps address references onto the destination object model. It
// never edits registry objects; every group it needs is derived once, cached
// by (original name, transform) and recorded in the plan.
type Splitter struct {
	reg *registry.Registry

	objects map[string]string // export name -> destination name
	groups  map[derivedKey]string
	ranges  map[string][]string
	plan    model.Plan

	// Destination name -> owner, one map per destination namespace.
	objectOwners map[string]string
	groupOwners  map[string]string
}

func NewSplitter(reg *registry.Registry) *Splitter {
	return &Splitter{
		reg:          reg,
		objects:      make(map[string]string),
		groups:       make(map[derivedKey]string),
		ranges:       make(map[string][]string),
		objectOwners: make(map[string]string),
		groupOwners:  make(map[string]string),
	}
}

// Split returns the variants of a reference in emission order: IPv4 forms
// before FQDN forms. An unresolvable reference yields none.
func (s *Splitter) Split(ref model.AddressRef) []Variant {
	if ref.Any {
		return []Variant{{Expr: model.AddressExpr{Any: true}}}
	}
	kind, ok := s.reg.Kind(ref.Name)
	if !ok {
		return nil
	}
	switch kind {
	case model.KindIPv4:
		return []Variant{objectVariant(s.object(ref.Name), false)}
	case model.KindFQDN:
		return []Variant{objectVariant(s.object(ref.Name), true)}
	case model.KindRange:
		members := s.rangeObjects(ref.Name)
		if len(members) == 0 {
			return nil
		}
		return []Variant{groupVariant(s.group(ref.Name, model.TagRange, members), model.TagRange, false)}
	}
	return s.splitGroup(ref.Name)
}

// splitGroup expands ranges first and then splits by type, so a mixed group
// holding ranges yields an IPv4 half that carries the range blocks.
func (s *Splitter) splitGroup(name string) []Variant {
	leaves, _ := s.reg.Members(name)
	var ipv4, fqdn []string
	hasRange := false
	for _, leaf := range leaves {
		switch leaf.Kind {
		case model.KindIPv4:
			ipv4 = append(ipv4, s.object(leaf.Name))
		case model.KindRange:
			hasRange = true
			ipv4 = append(ipv4, s.rangeObjects(leaf.Name)...)
		case model.KindFQDN:
			fqdn = append(fqdn, s.object(leaf.Name))
		}
	}

	switch {
	case len(ipv4) == 0 && len(fqdn) == 0:
		return nil
	case len(fqdn) == 0 && hasRange:
		return []Variant{groupVariant(s.group(name, model.TagRange, ipv4), model.TagRange, false)}
	case len(fqdn) == 0:
		return []Variant{groupVariant(s.group(name, model.TagNone, ipv4), model.TagNone, false)}
	case len(ipv4) == 0:
		return []Variant{groupVariant(s.group(name, model.TagNone, fqdn), model.TagNone, true)}
	}
	if g, ok := s.reg.Group(name); ok {
		slog.Debug("mixed group split", "name", name, "family", g.Family, "ipv4", len(ipv4), "fqdn", len(fqdn))
	}
	return []Variant{
		groupVariant(s.group(name, model.TagIPv4, ipv4), model.TagIPv4, false),
		groupVariant(s.group(name, model.TagFQDN, fqdn), model.TagFQDN, true),
	}
}

// object records a plain IPv4 or FQDN object and returns its destination name.
func (s *Splitter) object(name string) string {
	if dest, ok := s.objects[name]; ok {
		return dest
	}
	dest := claim(s.objectOwners, model.SanitizeName(name), "object "+name)
	s.objects[name] = dest
	if fq, ok := s.reg.FQDN(name); ok {
		s.plan.Objects = append(s.plan.Objects, model.DestObject{Name: dest, Type: "fqdn", FQDN: fq.Domain})
		return dest
	}
	addr, _ := s.reg.Address(name)
	s.plan.Objects = append(s.plan.Objects, model.DestObject{Name: dest, Type: "cidr", CIDR: addr.Prefix.String()})
	return dest
}

// rangeObjects records the CIDR objects covering a range object, named
// <name>__range__<i>.
func (s *Splitter) rangeObjects(name string) []string {
	if names, ok := s.ranges[name]; ok {
		return names
	}
	rng, _ := s.reg.Range(name)
	blocks, err := utils.RangeToPrefixes(rng.Start, rng.End)
	if err != nil {
		slog.Warn("range object cannot be expanded", "name", name, "error", err)
	}
	base := model.SanitizeName(name) + string(model.TagRange)
	names := make([]string, 0, len(blocks))
	var covered uint64
	for i, b := range blocks {
		covered += utils.PrefixSize(b)
		dest := claim(s.objectOwners, base+strconv.Itoa(i), "range "+name+" block "+strconv.Itoa(i))
		names = append(names, dest)
		s.plan.Objects = append(s.plan.Objects, model.DestObject{Name: dest, Type: "cidr", CIDR: b.String()})
	}
	s.ranges[name] = names
	slog.Debug("range expanded", "name", name, "blocks", len(blocks), "addresses", covered)
	return names
}

// group records a destination group once per (name, tag) and returns its
// destination name. Untagged groups keep the original name and carry the
// flattened members, since the destination has no nested groups.
func (s *Splitter) group(name string, tag model.SplitTag, members []string) string {
	key := derivedKey{name: name, tag: tag}
	if dest, ok := s.groups[key]; ok {
		return dest
	}
	dest := claim(s.groupOwners, model.SanitizeName(name)+string(tag), "group "+name+" "+string(tag))
	s.groups[key] = dest
	s.plan.Groups = append(s.plan.Groups, model.DestGroup{Name: dest, Tag: tag, Origin: name, Members: members})
	slog.Debug("destination group recorded", "name", dest, "origin", name, "members", len(members))
	return dest
}

// claim reserves a destination name for owner. Sanitizing and the derived
// suffixes can map distinct export names onto one destination name; every
// owner after the first gets a numeric suffix.
func claim(owners map[string]string, want, owner string) string {
	dest := want
	for i := 2; ; i++ {
		if cur, taken := owners[dest]; !taken || cur == owner {
			break
		}
		dest = want + "_" + strconv.Itoa(i)
	}
	if dest != want {
		slog.Warn("destination name already taken", "name", want, "owner", owner, "renamed", dest)
	}
	owners[dest] = owner
	return dest
}

// Plan lists every object and group referenced so far, in first-use order.
func (s *Splitter) Plan() *model.Plan {
	return &s.plan
}

func objectVariant(name string, fqdn bool) Variant {
	return Variant{Expr: model.AddressExpr{Refs: []model.Ref{{Kind: model.RefObject, Name: name}}}, FQDN: fqdn}
}

func groupVariant(name string, tag model.SplitTag, fqdn bool) Variant {
	return Variant{Expr: model.AddressExpr{Refs: []model.Ref{{Kind: model.RefGroup, Name: name}}}, Tag: tag, FQDN: fqdn}
}
