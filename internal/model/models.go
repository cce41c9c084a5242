package model

import (
	"net/netip"
	"strconv"
	"strings"
)

type Protocol string // "tcp", "udp", "icmp", "any"

const (
	TCP   Protocol = "tcp"
	UDP   Protocol = "udp"
	ICMP  Protocol = "icmp"
	ICMP6 Protocol = "icmp6"
	Any   Protocol = "any"
)

type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
)

// ObjectKind is the concrete type behind an address-namespace name.
type ObjectKind int

const (
	KindIPv4 ObjectKind = iota
	KindRange
	KindFQDN
	KindGroup
)

func (k ObjectKind) String() string {
	switch k {
	case KindIPv4:
		return "ipv4"
	case KindRange:
		return "range"
	case KindFQDN:
		return "fqdn"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Family is the address family tag a member reference was written with.
type Family string

const (
	FamilyIPv4 Family = "ipv4"
	FamilyIPv6 Family = "ipv6"
	FamilyFQDN Family = "fqdn"
)

type AddressObject struct {
	Name   string
	Prefix netip.Prefix // host objects are /32
	Zone   string
}

type RangeObject struct {
	Name  string
	Start netip.Addr
	End   netip.Addr
	Zone  string
}

type FQDNObject struct {
	Name   string
	Domain string
	Zone   string
}

// MemberRef is one entry of a group definition, in export order.
type MemberRef struct {
	Name   string
	Group  bool
	Family Family
}

type Group struct {
	Name    string
	Family  Family
	Members []MemberRef
}

// Leaf is a resolved, non-group member of a group.
type Leaf struct {
	Name string
	Kind ObjectKind
}

type ServiceObject struct {
	Name      string
	Protocol  Protocol
	StartPort int
	EndPort   int
}

// Port renders the destination port field: "80", "1000-2000" or "any".
func (s *ServiceObject) Port() string {
	if s.Protocol != TCP && s.Protocol != UDP {
		return "any"
	}
	if s.StartPort == s.EndPort {
		return strconv.Itoa(s.StartPort)
	}
	return strconv.Itoa(s.StartPort) + "-" + strconv.Itoa(s.EndPort)
}

type ServiceGroup struct {
	Name    string
	Members []MemberRef
}

// Zone is a source-side segment; a blank VLAN marks it non-local (VPN, WAN).
type Zone struct {
	Name string
	VLAN string
}

// AddressRef is a rule's source or destination as written in the export.
type AddressRef struct {
	Any   bool
	Group bool
	Name  string
}

func (r AddressRef) String() string {
	switch {
	case r.Any:
		return "any"
	case r.Group:
		return "group " + r.Name
	default:
		return "name " + r.Name
	}
}

type ServiceRef struct {
	Any   bool
	Group bool
	Name  string
}

func (r ServiceRef) String() string {
	switch {
	case r.Any:
		return "any"
	case r.Group:
		return "group " + r.Name
	default:
		return "name " + r.Name
	}
}

type ACLRule struct {
	ID      string
	Text    string // header line, used for traceability in logs
	Line    int
	SrcZone string
	DstZone string
	Src     AddressRef
	Dst     AddressRef
	Service ServiceRef
	SrcPort string
	Action  Action
	Active  bool
	Comment string
}

// IsZoneDefault reports whether the rule is an any/any/any rule between two
// zones. Such rules describe default inter-zone traffic, not a policy.
func (r *ACLRule) IsZoneDefault() bool {
	return r.Src.Any && r.Dst.Any && r.Service.Any
}

type RuleSet string

const (
	Outbound   RuleSet = "outbound"
	Inbound    RuleSet = "inbound"
	SiteToSite RuleSet = "site-to-site"
)

// SplitTag marks a destination group as derived from an original group.
type SplitTag string

const (
	TagNone  SplitTag = ""
	TagRange SplitTag = "__range__"
	TagIPv4  SplitTag = "__ipv4__split"
	TagFQDN  SplitTag = "__fqdn__split"
)

// RefKind distinguishes policy objects from policy object groups in an
// address expression.
type RefKind string

const (
	RefObject RefKind = "OBJ"
	RefGroup  RefKind = "GRP"
)

type Ref struct {
	Kind RefKind
	Name string
}

// AddressExpr is a destination-side address field. Names are resolved to
// dashboard IDs by the API client when the rule is pushed.
type AddressExpr struct {
	Any  bool
	VLAN string
	Refs []Ref
}

func (e AddressExpr) String() string {
	if e.Any {
		return "any"
	}
	if e.VLAN != "" {
		return "VLAN(" + e.VLAN + ").*"
	}
	parts := make([]string, 0, len(e.Refs))
	for _, r := range e.Refs {
		parts = append(parts, string(r.Kind)+"("+r.Name+")")
	}
	return strings.Join(parts, ",")
}

type TranslatedRule struct {
	RuleSet       RuleSet
	Policy        Action
	Protocol      Protocol
	SrcCidr       AddressExpr
	DestCidr      AddressExpr
	SrcPort       string
	DestPort      string
	Comment       string
	SyslogEnabled bool
	SplitTags     []SplitTag // derived-group tags, source before destination
	Origin        *ACLRule   // nil for generated inter-zone rules
}

type ZoneTrafficEntry struct {
	SrcZone string
	DstZone string
	Action  Action
}

type UnprocessedObject struct {
	Name   string
	Group  string
	Reason string
}

type UnprocessedRule struct {
	Text   string
	Reason string
}

// DestObject is a policy object to create on the destination platform.
type DestObject struct {
	Name string
	Type string // "cidr" or "fqdn"
	CIDR string
	FQDN string
}

// DestGroup is a flat policy object group; the destination has no nesting.
type DestGroup struct {
	Name    string
	Tag     SplitTag
	Origin  string
	Members []string
}

// Plan lists every object and group the translated rules reference.
type Plan struct {
	Objects []DestObject
	Groups  []DestGroup
}

// SanitizeName maps an export name to one the destination accepts.
func SanitizeName(name string) string {
	return strings.NewReplacer(".", "_", ":", "_", "*", "_", `"`, "").Replace(name)
}
