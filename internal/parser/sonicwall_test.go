package parser

import (
	"os"
	"strings"
	"testing"

	"sonicwall-to-mx/internal/model"
)

func parseString(t *testing.T, config string) *Result {
	t.Helper()
	res, err := NewSonicWallParser(strings.NewReader(config)).Parse()
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	return res
}

func TestSonicWallParserParsesExport(t *testing.T) {
	f, err := os.Open("../../testdata/showrun.txt")
	if err != nil {
		t.Fatalf("failed to open fixture: %v", err)
	}
	defer f.Close()

	res, err := NewSonicWallParser(f).Parse()
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}

	counts := map[string]int{}
	for _, s := range res.Statements {
		counts[s.Kind()]++
	}
	if counts[KindZone] != 4 {
		t.Errorf("expected 4 zones, got %d", counts[KindZone])
	}
	// Web Server, Office_Net, Printer_Range, Updates; the ipv6 host is dropped.
	if counts[KindAddressObject] != 4 {
		t.Errorf("expected 4 address objects, got %d", counts[KindAddressObject])
	}
	if counts[KindAddressGroup] != 2 {
		t.Errorf("expected 2 address groups, got %d", counts[KindAddressGroup])
	}
	if counts[KindServiceObject] != 4 {
		t.Errorf("expected 4 service objects, got %d", counts[KindServiceObject])
	}
	if counts[KindAccessRule] != 4 {
		t.Errorf("expected 4 access rules, got %d", counts[KindAccessRule])
	}

	if len(res.Failures) != 2 {
		t.Fatalf("expected 2 parse failures, got %d: %+v", len(res.Failures), res.Failures)
	}
	if res.Failures[0].Name != "Broken_Host" || res.Failures[0].Reason != "no valid host, network or range line" {
		t.Errorf("unexpected first failure: %+v", res.Failures[0])
	}
	if res.Failures[1].Name != "Bad_Proto" || res.Failures[1].Kind != KindServiceObject {
		t.Errorf("unexpected second failure: %+v", res.Failures[1])
	}
}

func TestSonicWallParserAddressObjects(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		`address-object ipv4 "Web Server"`,
		"    host 10.0.10.5",
		"    zone DMZ",
		"    exit",
		"address-object ipv4 Net",
		"    network 10.1.2.3 255.255.255.0",
		"    exit",
		"address-object ipv4 R",
		"    range 10.0.0.1 10.0.0.9",
		"    exit",
		"address-object fqdn F",
		"    domain www.example.com",
		"    exit",
	}, "\n"))

	if len(res.Statements) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(res.Statements))
	}
	host := res.Statements[0].(*AddressStmt)
	if host.Name != "Web Server" || host.Prefix.String() != "10.0.10.5/32" || host.Zone != "DMZ" {
		t.Errorf("unexpected host object: %+v", host)
	}
	if host.Line != 1 {
		t.Errorf("expected host on line 1, got %d", host.Line)
	}
	network := res.Statements[1].(*AddressStmt)
	if network.Prefix.String() != "10.1.2.0/24" {
		t.Errorf("expected network to be masked to 10.1.2.0/24, got %s", network.Prefix)
	}
	rng := res.Statements[2].(*AddressStmt)
	if !rng.IsRange() || rng.Start.String() != "10.0.0.1" || rng.End.String() != "10.0.0.9" {
		t.Errorf("unexpected range object: %+v", rng)
	}
	fqdn := res.Statements[3].(*FQDNStmt)
	if fqdn.Domain != "www.example.com" {
		t.Errorf("expected domain www.example.com, got %s", fqdn.Domain)
	}
}

func TestSonicWallParserAcceptsWildcardMasks(t *testing.T) {
	res := parseString(t, "address-object ipv4 Lab\n    network 172.16.4.0 0.0.3.255\n    exit")
	if len(res.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d (failures %+v)", len(res.Statements), res.Failures)
	}
	if got := res.Statements[0].(*AddressStmt).Prefix.String(); got != "172.16.4.0/22" {
		t.Errorf("expected 172.16.4.0/22, got %s", got)
	}
}

func TestSonicWallParserReportsMalformedObjects(t *testing.T) {
	tests := []struct {
		name   string
		config string
		reason string
	}{
		{"bad host", "address-object ipv4 A\n    host 10.0.0\n    exit", "invalid host address"},
		{"bad mask", "address-object ipv4 A\n    network 10.0.0.0 255.0.255.0\n    exit", "non-contiguous netmask"},
		{"inverted range", "address-object ipv4 A\n    range 10.0.0.9 10.0.0.1\n    exit", "is after end"},
		{"missing domain", "address-object fqdn A\n    zone WAN\n    exit", "no valid domain line"},
		{"missing ports", "service-object A TCP", "missing port numbers"},
		{"bad port", "service-object A UDP 70000 70000", "invalid port"},
		{"inverted ports", "service-object A TCP 90 80", "inverted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parseString(t, tt.config)
			if len(res.Statements) != 0 {
				t.Fatalf("expected no statements, got %d", len(res.Statements))
			}
			if len(res.Failures) != 1 {
				t.Fatalf("expected 1 failure, got %d", len(res.Failures))
			}
			if !strings.Contains(res.Failures[0].Reason, tt.reason) {
				t.Errorf("expected reason to contain %q, got %q", tt.reason, res.Failures[0].Reason)
			}
			if res.Failures[0].Name != "A" {
				t.Errorf("expected failure for object A, got %q", res.Failures[0].Name)
			}
		})
	}
}

func TestSonicWallParserGroupMembersKeepOrderAndFamily(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		"address-group ipv6 G",
		`    address-object ipv4 "Host A"`,
		"    address-object fqdn F",
		"    address-group ipv4 Inner",
		"    address-object ipv6 V6",
		"    exit",
	}, "\n"))

	grp := res.Statements[0].(*GroupStmt)
	want := []model.MemberRef{
		{Name: "Host A", Family: model.FamilyIPv4},
		{Name: "F", Family: model.FamilyFQDN},
		{Name: "Inner", Group: true, Family: model.FamilyIPv4},
		{Name: "V6", Family: model.FamilyIPv6},
	}
	if len(grp.Members) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(grp.Members))
	}
	for i := range want {
		if grp.Members[i] != want[i] {
			t.Errorf("member %d: expected %+v, got %+v", i, want[i], grp.Members[i])
		}
	}
}

func TestSonicWallParserServices(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		"service-object Web TCP 80 80",
		"service-object Dyn UDP 1000 2000",
		`service-object "Echo Request" ICMP 8`,
		"service-group G",
		"    service-object Web",
		"    service-group Inner",
		"    exit",
	}, "\n"))

	web := res.Statements[0].(*ServiceStmt)
	if web.Protocol != model.TCP || web.StartPort != 80 || web.EndPort != 80 {
		t.Errorf("unexpected service: %+v", web)
	}
	dyn := res.Statements[1].(*ServiceStmt)
	if dyn.Protocol != model.UDP || dyn.StartPort != 1000 || dyn.EndPort != 2000 {
		t.Errorf("unexpected service: %+v", dyn)
	}
	echo := res.Statements[2].(*ServiceStmt)
	if echo.Name != "Echo Request" || echo.Protocol != model.ICMP {
		t.Errorf("unexpected service: %+v", echo)
	}
	grp := res.Statements[3].(*ServiceGroupStmt)
	if len(grp.Members) != 2 || !grp.Members[1].Group || grp.Members[1].Name != "Inner" {
		t.Errorf("unexpected service group members: %+v", grp.Members)
	}
}

func TestSonicWallParserRuleHeaderAndChildren(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		`access-rule ipv4 from LAN to WAN action allow source address group "Office Nets" service name HTTPS destination address any`,
		"    from DMZ",
		"    source address any",
		"    id 17",
		`    comment "web access for office"`,
		"    exit",
		"access-rule ipv4 from WAN to LAN",
		"    action discard",
		"    source address any",
		"    service any",
		"    destination address name Srv",
		"    source port name P",
		"    exit",
	}, "\n"))

	rules := res.Rules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d (failures: %+v)", len(rules), res.Failures)
	}
	r := rules[0]
	if r.SrcZone != "LAN" || r.DstZone != "WAN" {
		t.Errorf("expected header zones to win, got %s -> %s", r.SrcZone, r.DstZone)
	}
	if !r.Src.Group || r.Src.Name != "Office Nets" {
		t.Errorf("expected source group Office Nets, got %+v", r.Src)
	}
	if r.Service.Name != "HTTPS" || !r.Dst.Any || r.Action != model.Allow {
		t.Errorf("unexpected rule fields: %+v", r)
	}
	if r.ID != "17" || r.Comment != "web access for office" || r.SrcPort != "any" || !r.Enabled {
		t.Errorf("unexpected rule metadata: %+v", r)
	}

	r = rules[1]
	if r.Action != model.Deny {
		t.Errorf("expected discard to map to deny, got %s", r.Action)
	}
	if r.SrcPort != "name P" {
		t.Errorf("expected source port to be kept as written, got %q", r.SrcPort)
	}
}

func TestSonicWallParserReportsBareServiceHeaders(t *testing.T) {
	tests := []struct {
		name   string
		config string
		reason string
	}{
		{"service object", "service-object\n", "missing service name or protocol"},
		{"service group", "service-group\n", "missing group name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parseString(t, tt.config+"zone LAN\n")
			if len(res.Failures) != 1 {
				t.Fatalf("expected 1 failure, got %+v", res.Failures)
			}
			if res.Failures[0].Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, res.Failures[0].Reason)
			}
			if res.Failures[0].Name != "" {
				t.Errorf("expected no name, got %q", res.Failures[0].Name)
			}
			if len(res.Statements) != 1 {
				t.Errorf("expected parsing to continue to the zone, got %d statements", len(res.Statements))
			}
		})
	}
}

func TestSonicWallParserRuleFailures(t *testing.T) {
	tests := []struct {
		name   string
		config string
		reason string
	}{
		{"no zones", "access-rule ipv4 action allow source address any service any destination address any", "missing source or destination zone"},
		{"no action", "access-rule ipv4 from A to B source address any service any destination address any", "missing action"},
		{"bad action", "access-rule ipv4 from A to B action reject source address any service any destination address any", "unsupported action"},
		{"no service", "access-rule ipv4 from A to B action allow source address any destination address any", "incomplete rule"},
		{"bad reference", "access-rule ipv4 from A to B action allow source address host X service any destination address any", "expected any, name or group"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parseString(t, tt.config)
			if len(res.Failures) != 1 {
				t.Fatalf("expected 1 failure, got %d", len(res.Failures))
			}
			if !res.Failures[0].IsRule() {
				t.Errorf("expected a rule failure, got kind %s", res.Failures[0].Kind)
			}
			if !strings.Contains(res.Failures[0].Reason, tt.reason) {
				t.Errorf("expected reason to contain %q, got %q", tt.reason, res.Failures[0].Reason)
			}
		})
	}
}

func TestSonicWallParserInactiveRuleIsNotAFailure(t *testing.T) {
	res := parseString(t, "access-rule ipv4 from A to B\n    no enable\n    exit")
	if len(res.Failures) != 0 {
		t.Fatalf("expected inactive rule to produce no failure, got %+v", res.Failures)
	}
	rules := res.Rules()
	if len(rules) != 1 || rules[0].Enabled {
		t.Fatalf("expected one disabled rule, got %+v", rules)
	}
}

func TestSonicWallParserInactiveRuleHidesMalformedChildren(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		"access-rule ipv4 from A to B action allow",
		"    source address bogus X",
		"    no enable",
		"    exit",
	}, "\n"))
	if len(res.Failures) != 0 {
		t.Fatalf("expected no failure for an inactive rule, got %+v", res.Failures)
	}
	if rules := res.Rules(); len(rules) != 1 || rules[0].Enabled {
		t.Fatalf("expected one disabled rule, got %+v", rules)
	}
}

func TestSonicWallParserActiveRuleKeepsFirstChildError(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		"access-rule ipv4 from A to B action allow",
		"    source address bogus X",
		"    destination address weird Y",
		"    service any",
		"    exit",
	}, "\n"))
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %+v", res.Failures)
	}
	if !strings.HasPrefix(res.Failures[0].Reason, "source address:") {
		t.Errorf("expected the source address error, got %q", res.Failures[0].Reason)
	}
}

func TestSonicWallParserSplitsSubObjects(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		"address-object ipv4 First",
		"    host 10.0.0.1",
		"    exit",
		"    name Second",
		"    host 10.0.0.2",
		"    exit",
		"access-rule ipv4 from LAN to WAN action allow source address any service any destination address name First",
		"    id 1",
		"    exit",
		"    id 2",
		"    destination address name Second",
		"    exit",
	}, "\n"))

	if len(res.Statements) != 4 {
		t.Fatalf("expected 4 statements, got %d (failures %+v)", len(res.Statements), res.Failures)
	}
	second := res.Statements[1].(*AddressStmt)
	if second.Name != "Second" || second.Prefix.String() != "10.0.0.2/32" {
		t.Errorf("unexpected sub-object: %+v", second)
	}
	sub := res.Statements[3].(*RuleStmt)
	if !strings.HasSuffix(sub.Text, " (Sub Rule)") {
		t.Errorf("expected sub rule header suffix, got %q", sub.Text)
	}
	if sub.ID != "2" || sub.Dst.Name != "First" {
		t.Errorf("expected sub rule to keep header destination and its own id, got %+v", sub)
	}
}

func TestSonicWallParserIgnoresUnknownDirectives(t *testing.T) {
	res := parseString(t, strings.Join([]string{
		"interface X0",
		"    ip-assignment LAN static",
		"    exit",
		"nat-policy inbound X1 outbound any",
		"access-rule ipv6 from LAN to WAN action allow",
		"end",
	}, "\n"))
	if len(res.Statements) != 0 || len(res.Failures) != 0 {
		t.Fatalf("expected unknown directives to be dropped, got %+v / %+v", res.Statements, res.Failures)
	}
}

func TestFieldsKeepsQuotedRuns(t *testing.T) {
	got := fields(`address-object ipv4 "My Host" zone  LAN`)
	want := []string{"address-object", "ipv4", "My Host", "zone", "LAN"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, got)
	}
}
