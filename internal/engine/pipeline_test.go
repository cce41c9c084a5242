package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/parser"
)

var fixtureZones = []model.Zone{
	{Name: "LAN", VLAN: "10"},
	{Name: "WAN", VLAN: "20"},
	{Name: "DMZ", VLAN: "30"},
	{Name: "VPN"},
}

func runFixture(t *testing.T, opts Options) *Result {
	t.Helper()
	f, err := os.Open("../../testdata/showrun.txt")
	require.NoError(t, err)
	defer f.Close()

	res, err := Run(context.Background(), Input{
		Source:  parser.NewSonicWallParser(f),
		Zones:   fixtureZones,
		Options: opts,
	})
	require.NoError(t, err)
	return res
}

func TestRunFixture(t *testing.T) {
	res := runFixture(t, Options{
		IntelligentMapping:   true,
		DefaultInterZoneDeny: true,
		Inbound:              []string{"WAN"},
		SiteToSite:           []string{"VPN"},
		Syslog:               true,
	})

	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Rules, 3, "the disabled rule is dropped")
	assert.Equal(t, []string{"1", "2", "4"}, []string{res.Rules[0].ID, res.Rules[1].ID, res.Rules[2].ID})
	assert.Equal(t, 1, res.Translation.ZoneDefaults)
	assert.Empty(t, res.Translation.Inbound)
	assert.Empty(t, res.Translation.SiteToSite)

	// rule 1: two source halves times three service buckets, rule 4: one,
	// plus the WAN to LAN default deny.
	out := res.Translation.Outbound
	require.Len(t, out, 8)

	var ports []string
	for _, r := range out[:6] {
		assert.Equal(t, objExpr("Updates"), r.DestCidr)
		assert.Equal(t, "1", r.Origin.ID)
		ports = append(ports, string(r.Protocol)+"/"+r.DestPort)
	}
	assert.Equal(t, []string{
		"tcp/9000-9100", "tcp/443,8080", "udp/514",
		"tcp/9000-9100", "tcp/443,8080", "udp/514",
	}, ports)
	assert.Equal(t, grpExpr("Mixed__ipv4__split"), out[0].SrcCidr)
	assert.Equal(t, "Allow office web __ipv4__split", out[0].Comment)
	assert.Equal(t, grpExpr("Mixed__fqdn__split"), out[3].SrcCidr)
	assert.Equal(t, "Allow office web __fqdn__split", out[3].Comment)

	assert.Equal(t, model.AddressExpr{Any: true}, out[6].SrcCidr)
	assert.Equal(t, grpExpr("Servers__range__"), out[6].DestCidr)
	assert.Equal(t, model.ICMP, out[6].Protocol)
	assert.Equal(t, "rule 4 __range__", out[6].Comment)

	assert.Equal(t, "Any Any Inter-zone rule", out[7].Comment)
	assert.Equal(t, "VLAN(20).*", out[7].SrcCidr.String())
	assert.Equal(t, "VLAN(10).*", out[7].DestCidr.String())

	action, ok := res.Matrix.Action("WAN", "LAN")
	require.True(t, ok)
	assert.Equal(t, model.Deny, action)
	assert.Len(t, res.Matrix.Entries(), 12)

	assert.Equal(t, []model.UnprocessedObject{
		{Name: "Broken_Host", Reason: "no valid host, network or range line"},
		{Name: "Bad_Proto", Reason: "unsupported protocol IGMP"},
		{Name: "Missing_Host", Group: "Mixed", Reason: "not found"},
		{Name: "V6_Host", Group: "Mixed", Reason: "unsupported address family (ipv6)"},
	}, res.UnprocessedObjects())
	assert.Empty(t, res.UnprocessedRules())
}

func TestRunPlanListsRangeBlocks(t *testing.T) {
	res := runFixture(t, Options{})

	var names []string
	for _, o := range res.Plan.Objects {
		names = append(names, o.Name)
	}
	assert.Subset(t, names, []string{"Web Server", "Office_Net", "Updates",
		"Printer_Range__range__0", "Printer_Range__range__1", "Printer_Range__range__2"})

	groups := make(map[string]model.DestGroup)
	for _, g := range res.Plan.Groups {
		groups[g.Name] = g
	}
	require.Contains(t, groups, "Servers__range__")
	assert.Equal(t, []string{"Web Server", "Printer_Range__range__0", "Printer_Range__range__1", "Printer_Range__range__2"},
		groups["Servers__range__"].Members)
	assert.Equal(t, []string{"Updates"}, groups["Mixed__fqdn__split"].Members)
}

func TestRunWithoutOptionsKeepsEverythingOutbound(t *testing.T) {
	res := runFixture(t, Options{Inbound: []string{"WAN"}})
	assert.Len(t, res.Translation.Outbound, 7)
	for _, r := range res.Translation.Outbound {
		assert.False(t, r.SyslogEnabled)
		assert.Equal(t, model.Outbound, r.RuleSet)
	}
}

func TestRunEmptyInput(t *testing.T) {
	_, err := Run(context.Background(), Input{Source: parser.NewSonicWallParser(strings.NewReader("\n\n"))})
	assert.ErrorIs(t, err, ErrNoStatements)
}

type failingSource struct{}

var errUnreadable = errors.New("unreadable")

func (failingSource) Load(context.Context) (*parser.Result, error) { return nil, errUnreadable }

func TestRunWrapsLoadErrors(t *testing.T) {
	_, err := Run(context.Background(), Input{Source: failingSource{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnreadable)
	assert.Contains(t, err.Error(), "failed to load statements")
}
