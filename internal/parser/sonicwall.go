package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"unicode"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/utils"
)

// Statement kinds, named after the export keyword that introduces them.
const (
	KindAddressObject = "address-object"
	KindAddressGroup  = "address-group"
	KindServiceObject = "service-object"
	KindServiceGroup  = "service-group"
	KindZone          = "zone"
	KindAccessRule    = "access-rule"
)

// Statement is one typed definition read from an export.
type Statement interface {
	Kind() string
	Position() Pos
}

// Pos locates a statement in its source for traceability.
type Pos struct {
	Line int
	Text string
}

func (p Pos) Position() Pos { return p }

type AddressStmt struct {
	Pos
	Name   string
	Prefix netip.Prefix
	Start  netip.Addr // set for range objects only
	End    netip.Addr
	Zone   string
}

func (*AddressStmt) Kind() string { return KindAddressObject }

func (s *AddressStmt) IsRange() bool { return s.Start.IsValid() }

type FQDNStmt struct {
	Pos
	Name   string
	Domain string
	Zone   string
}

func (*FQDNStmt) Kind() string { return KindAddressObject }

type GroupStmt struct {
	Pos
	Name    string
	Family  model.Family
	Members []model.MemberRef
}

func (*GroupStmt) Kind() string { return KindAddressGroup }

type ServiceStmt struct {
	Pos
	Name      string
	Protocol  model.Protocol
	StartPort int
	EndPort   int
}

func (*ServiceStmt) Kind() string { return KindServiceObject }

type ServiceGroupStmt struct {
	Pos
	Name    string
	Members []model.MemberRef
}

func (*ServiceGroupStmt) Kind() string { return KindServiceGroup }

type ZoneStmt struct {
	Pos
	Name string
}

func (*ZoneStmt) Kind() string { return KindZone }

type RuleStmt struct {
	Pos
	ID      string
	SrcZone string
	DstZone string
	Action  model.Action
	Src     model.AddressRef
	Dst     model.AddressRef
	Service model.ServiceRef
	SrcPort string
	Comment string
	Enabled bool

	rawAction              string
	hasSrc, hasDst, hasSvc bool
}

func (*RuleStmt) Kind() string { return KindAccessRule }

// ParseFailure is a recognized statement that could not be read. The
// statement is skipped and the run continues.
type ParseFailure struct {
	Line   int
	Kind   string
	Name   string
	Text   string
	Reason string
}

func (f ParseFailure) IsRule() bool { return f.Kind == KindAccessRule }

type Result struct {
	Statements []Statement
	Failures   []ParseFailure
}

// Rules returns the access-rule statements in export order.
func (r *Result) Rules() []*RuleStmt {
	var rules []*RuleStmt
	for _, s := range r.Statements {
		if rule, ok := s.(*RuleStmt); ok {
			rules = append(rules, rule)
		}
	}
	return rules
}

type SonicWallParser struct {
	scanner *bufio.Scanner
}

func NewSonicWallParser(reader io.Reader) *SonicWallParser {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SonicWallParser{scanner: scanner}
}

type line struct {
	num  int
	text string
}

type block struct {
	line     int
	header   string
	children []line
}

// Parse reads the whole export. Only a read error is returned; malformed
// statements are reported in Result.Failures.
func (p *SonicWallParser) Parse() (*Result, error) {
	blocks, err := p.readBlocks()
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	res := &Result{}
	for _, b := range blocks {
		tok := fields(b.header)
		if len(tok) == 0 {
			continue
		}
		switch strings.ToLower(tok[0]) {
		case KindAddressObject, KindAddressGroup:
			for _, sub := range splitSubBlocks(b, false) {
				stmt, err := parseAddressBlock(sub)
				res.add(sub, stmt, err)
			}
		case KindAccessRule:
			for _, sub := range splitSubBlocks(b, true) {
				stmt, err := parseAccessRule(sub)
				res.add(sub, stmt, err)
			}
		case KindServiceObject:
			stmt, err := parseServiceObject(b)
			res.add(b, stmt, err)
		case KindServiceGroup:
			stmt, err := parseServiceGroup(b)
			res.add(b, stmt, err)
		case KindZone:
			if len(tok) > 1 {
				res.Statements = append(res.Statements, &ZoneStmt{Pos: pos(b), Name: tok[1]})
			}
		}
	}
	return res, nil
}

func (r *Result) add(b block, stmt Statement, err error) {
	if err != nil {
		tok := fields(b.header)
		f := ParseFailure{Line: b.line, Kind: strings.ToLower(tok[0]), Text: b.header, Reason: err.Error()}
		if len(tok) > 2 && f.Kind != KindAccessRule {
			f.Name = tok[2]
		}
		if (f.Kind == KindServiceObject || f.Kind == KindServiceGroup) && len(tok) > 1 {
			f.Name = tok[1]
		}
		r.Failures = append(r.Failures, f)
		return
	}
	if stmt != nil {
		r.Statements = append(r.Statements, stmt)
	}
}

// readBlocks groups the export into column-0 headers and their direct
// children. Deeper indented lines are not part of any supported construct.
func (p *SonicWallParser) readBlocks() ([]block, error) {
	var (
		blocks      []block
		cur         *block
		childIndent int
		num         int
	)
	for p.scanner.Scan() {
		num++
		raw := strings.TrimRight(p.scanner.Text(), " \t\r")
		text := strings.TrimLeft(raw, " \t")
		if text == "" {
			continue
		}
		indent := len(raw) - len(text)
		if indent == 0 {
			cur = nil
			if text == "exit" || text == "end" {
				continue
			}
			blocks = append(blocks, block{line: num, header: text})
			cur = &blocks[len(blocks)-1]
			childIndent = 0
			continue
		}
		if cur == nil {
			continue
		}
		if childIndent == 0 {
			childIndent = indent
		}
		if indent > childIndent {
			continue
		}
		cur.children = append(cur.children, line{num: num, text: text})
	}
	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// splitSubBlocks separates a block at its exit lines. A later chunk that
// begins with "name <n>" defines a further object of the same kind; for
// rules every later chunk is a sub rule under the same header.
func splitSubBlocks(b block, rule bool) []block {
	var chunks [][]line
	var curChunk []line
	for _, l := range b.children {
		if l.text == "exit" {
			if len(curChunk) > 0 {
				chunks = append(chunks, curChunk)
			}
			curChunk = nil
			continue
		}
		curChunk = append(curChunk, l)
	}
	if len(curChunk) > 0 {
		chunks = append(chunks, curChunk)
	}
	if len(chunks) <= 1 {
		b.children = nil
		if len(chunks) == 1 {
			b.children = chunks[0]
		}
		return []block{b}
	}

	out := []block{{line: b.line, header: b.header, children: chunks[0]}}
	prefix := strings.Join(firstN(fields(b.header), 2), " ")
	for _, c := range chunks[1:] {
		var header string
		switch {
		case rule:
			header = b.header + " (Sub Rule)"
		case strings.HasPrefix(c[0].text, "name "):
			header = prefix + " " + strings.TrimSpace(strings.TrimPrefix(c[0].text, "name "))
		default:
			continue
		}
		slog.Debug("split sub-object", "parent", b.header, "header", header, "line", c[0].num)
		out = append(out, block{line: c[0].num, header: header, children: c})
	}
	return out
}

func parseAddressBlock(b block) (Statement, error) {
	tok := fields(b.header)
	if len(tok) < 3 {
		return nil, errors.New("missing object name")
	}
	family, name := strings.ToLower(tok[1]), tok[2]
	if strings.ToLower(tok[0]) == KindAddressGroup {
		if family != "ipv4" && family != "ipv6" {
			return nil, nil
		}
		return parseGroup(b, name, model.Family(family))
	}
	switch family {
	case "ipv4":
		return parseIPv4Object(b, name)
	case "fqdn":
		return parseFQDNObject(b, name)
	}
	// ipv6 and mac objects have no destination equivalent.
	return nil, nil
}

func parseIPv4Object(b block, name string) (Statement, error) {
	obj := &AddressStmt{Pos: pos(b), Name: name}
	found := false
	for _, l := range b.children {
		f := fields(l.text)
		if len(f) == 0 {
			continue
		}
		switch strings.ToLower(f[0]) {
		case "host":
			if len(f) < 2 {
				return nil, errors.New("host line missing address")
			}
			addr, err := utils.ParseIPv4(f[1])
			if err != nil {
				return nil, fmt.Errorf("invalid host address: %w", err)
			}
			obj.Prefix = netip.PrefixFrom(addr, 32)
			found = true
		case "network":
			if len(f) < 3 {
				return nil, errors.New("network line missing address or mask")
			}
			addr, err := utils.ParseIPv4(f[1])
			if err != nil {
				return nil, fmt.Errorf("invalid network address: %w", err)
			}
			bits, err := utils.MaskPrefixLen(f[2])
			if err != nil {
				return nil, err
			}
			obj.Prefix = netip.PrefixFrom(addr, bits).Masked()
			found = true
		case "range":
			if len(f) < 3 {
				return nil, errors.New("range line missing start or end")
			}
			start, err := utils.ParseIPv4(f[1])
			if err != nil {
				return nil, fmt.Errorf("invalid range start: %w", err)
			}
			end, err := utils.ParseIPv4(f[2])
			if err != nil {
				return nil, fmt.Errorf("invalid range end: %w", err)
			}
			if end.Less(start) {
				return nil, fmt.Errorf("range start %s is after end %s", start, end)
			}
			obj.Start, obj.End = start, end
			found = true
		case "zone":
			if len(f) > 1 {
				obj.Zone = f[1]
			}
		}
	}
	if !found {
		return nil, errors.New("no valid host, network or range line")
	}
	return obj, nil
}

func parseFQDNObject(b block, name string) (Statement, error) {
	obj := &FQDNStmt{Pos: pos(b), Name: name}
	for _, l := range b.children {
		f := fields(l.text)
		if len(f) < 2 {
			continue
		}
		switch strings.ToLower(f[0]) {
		case "domain":
			obj.Domain = f[1]
		case "zone":
			obj.Zone = f[1]
		}
	}
	if obj.Domain == "" {
		return nil, errors.New("no valid domain line")
	}
	return obj, nil
}

func parseGroup(b block, name string, family model.Family) (Statement, error) {
	grp := &GroupStmt{Pos: pos(b), Name: name, Family: family}
	for _, l := range b.children {
		f := fields(l.text)
		if len(f) < 3 {
			continue
		}
		switch strings.ToLower(f[0]) {
		case KindAddressObject:
			grp.Members = append(grp.Members, model.MemberRef{Name: f[2], Family: model.Family(strings.ToLower(f[1]))})
		case KindAddressGroup:
			grp.Members = append(grp.Members, model.MemberRef{Name: f[2], Group: true, Family: model.Family(strings.ToLower(f[1]))})
		}
	}
	return grp, nil
}

// parseServiceObject reads the single-line form
// "service-object <name> <proto> [<low> <high>]".
func parseServiceObject(b block) (Statement, error) {
	tok := fields(b.header)
	if len(tok) < 3 {
		return nil, errors.New("missing service name or protocol")
	}
	svc := &ServiceStmt{Pos: pos(b), Name: tok[1]}
	switch proto := strings.ToUpper(tok[2]); proto {
	case "TCP", "UDP":
		if len(tok) < 5 {
			return nil, errors.New("missing port numbers")
		}
		low, err := parsePort(tok[3])
		if err != nil {
			return nil, err
		}
		high, err := parsePort(tok[4])
		if err != nil {
			return nil, err
		}
		if high < low {
			return nil, fmt.Errorf("port range %d-%d is inverted", low, high)
		}
		svc.Protocol = model.Protocol(strings.ToLower(proto))
		svc.StartPort, svc.EndPort = low, high
	case "ICMP":
		svc.Protocol = model.ICMP
	case "ICMPV6":
		svc.Protocol = model.ICMP6
	default:
		return nil, fmt.Errorf("unsupported protocol %s", tok[2])
	}
	return svc, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func parseServiceGroup(b block) (Statement, error) {
	tok := fields(b.header)
	if len(tok) < 2 {
		return nil, errors.New("missing group name")
	}
	grp := &ServiceGroupStmt{Pos: pos(b), Name: tok[1]}
	for _, l := range b.children {
		f := fields(l.text)
		if len(f) < 2 {
			continue
		}
		switch strings.ToLower(f[0]) {
		case KindServiceObject:
			grp.Members = append(grp.Members, model.MemberRef{Name: f[1]})
		case KindServiceGroup:
			grp.Members = append(grp.Members, model.MemberRef{Name: f[1], Group: true})
		}
	}
	return grp, nil
}

// parseAccessRule reads the header first, then the children. The first
// value seen for a field wins, so header values take precedence.
func parseAccessRule(b block) (Statement, error) {
	tok := fields(b.header)
	if len(tok) < 2 || strings.ToLower(tok[1]) != "ipv4" {
		return nil, nil
	}
	rule := &RuleStmt{Pos: pos(b), Enabled: true}
	firstErr := rule.apply(tok[2:])
	for _, l := range b.children {
		if err := rule.apply(fields(l.text)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// Inactive rules are dropped later without a trace, whatever their shape.
	if !rule.Enabled {
		return rule, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return rule, rule.validate()
}

func (r *RuleStmt) apply(tok []string) error {
	for i := 0; i < len(tok); {
		key := strings.ToLower(tok[i])
		switch key {
		case "from", "to", "action", "id":
			if i+1 >= len(tok) {
				return fmt.Errorf("%s without value", key)
			}
			r.setOnce(key, tok[i+1])
			i += 2
		case "comment":
			r.Comment = strings.Join(tok[i+1:], " ")
			return nil
		case "source", "destination":
			if i+1 >= len(tok) {
				return fmt.Errorf("%s without address or port", key)
			}
			sub := strings.ToLower(tok[i+1])
			ref, n, err := parseRef(tok[i+2:])
			if err != nil {
				return fmt.Errorf("%s %s: %w", key, sub, err)
			}
			switch {
			case sub == "address" && key == "source":
				if !r.hasSrc {
					r.Src, r.hasSrc = ref, true
				}
			case sub == "address":
				if !r.hasDst {
					r.Dst, r.hasDst = ref, true
				}
			case sub == "port" && key == "source":
				if r.SrcPort == "" {
					r.SrcPort = ref.String()
				}
			case sub != "port":
				return fmt.Errorf("unexpected %s %s", key, sub)
			}
			i += 2 + n
		case "service":
			ref, n, err := parseRef(tok[i+1:])
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}
			if !r.hasSvc {
				r.Service, r.hasSvc = model.ServiceRef(ref), true
			}
			i += 1 + n
		case "no":
			if i+1 < len(tok) && strings.ToLower(tok[i+1]) == "enable" {
				r.Enabled = false
			}
			return nil
		default:
			// Options with no destination equivalent (schedule, priority, ...).
			return nil
		}
	}
	return nil
}

func (r *RuleStmt) setOnce(key, val string) {
	switch key {
	case "from":
		if r.SrcZone == "" {
			r.SrcZone = val
		}
	case "to":
		if r.DstZone == "" {
			r.DstZone = val
		}
	case "action":
		if r.rawAction == "" {
			r.rawAction = strings.ToLower(val)
		}
	case "id":
		if r.ID == "" {
			r.ID = val
		}
	}
}

func (r *RuleStmt) validate() error {
	if r.SrcZone == "" || r.DstZone == "" {
		return errors.New("missing source or destination zone")
	}
	switch r.rawAction {
	case "allow":
		r.Action = model.Allow
	case "deny", "discard":
		r.Action = model.Deny
	case "":
		return errors.New("missing action")
	default:
		return fmt.Errorf("unsupported action %q", r.rawAction)
	}
	if !r.hasSrc || !r.hasDst || !r.hasSvc {
		return errors.New("incomplete rule: source, destination and service are required")
	}
	if r.SrcPort == "" {
		r.SrcPort = "any"
	}
	return nil
}

// parseRef reads "any", "name <n>" or "group <n>" and reports how many
// tokens it consumed.
func parseRef(tok []string) (model.AddressRef, int, error) {
	if len(tok) == 0 {
		return model.AddressRef{}, 0, errors.New("missing reference")
	}
	switch strings.ToLower(tok[0]) {
	case "any":
		return model.AddressRef{Any: true}, 1, nil
	case "name", "group":
		if len(tok) < 2 {
			return model.AddressRef{}, 0, fmt.Errorf("%s without value", tok[0])
		}
		return model.AddressRef{Group: strings.ToLower(tok[0]) == "group", Name: tok[1]}, 2, nil
	}
	return model.AddressRef{}, 0, fmt.Errorf("expected any, name or group, got %q", tok[0])
}

// fields splits a line on whitespace, keeping double-quoted runs together
// and dropping the quotes.
func fields(s string) []string {
	var (
		out     []string
		b       strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && unicode.IsSpace(r):
			if started {
				out = append(out, b.String())
				b.Reset()
				started = false
			}
		default:
			b.WriteRune(r)
			started = true
		}
	}
	if started {
		out = append(out, b.String())
	}
	return out
}

func firstN(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

func pos(b block) Pos {
	return Pos{Line: b.line, Text: b.header}
}
