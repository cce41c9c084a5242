package engine

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/parser"
	"sonicwall-to-mx/internal/registry"
)

// objectsConfig is shared by the splitter and translator tests.
var objectsConfig = strings.Join([]string{
	"address-object ipv4 A",
	"    host 10.0.0.1",
	"    exit",
	"address-object ipv4 B",
	"    network 10.0.1.0 255.255.255.0",
	"    exit",
	"address-object fqdn C",
	"    domain c.example.com",
	"    exit",
	"address-object fqdn C2",
	"    domain c2.example.com",
	"    exit",
	"address-object ipv4 R",
	"    range 192.168.1.10 192.168.1.14",
	"    exit",
	"address-group ipv6 Mixed",
	"    address-object ipv4 A",
	"    address-object ipv4 B",
	"    address-object fqdn C",
	"    address-object ipv4 D",
	"    exit",
	"address-group ipv4 Plain",
	"    address-object ipv4 A",
	"    address-object ipv4 B",
	"    exit",
	"address-group ipv4 WithRange",
	"    address-object ipv4 A",
	"    address-object ipv4 R",
	"    exit",
	"address-group ipv6 MixedRange",
	"    address-object ipv4 R",
	"    address-object fqdn C",
	"    exit",
	"address-group ipv6 FQDNOnly",
	"    address-object fqdn C",
	"    address-object fqdn C2",
	"    address-object ipv4 Gone",
	"    exit",
	"address-group ipv4 Empty",
	"    address-object ipv4 Gone",
	"    exit",
	"address-group ipv4 Outer",
	"    address-group ipv4 Plain",
	"    address-object ipv4 A",
	"    exit",
	"service-object Web TCP 80 80",
	"service-object Alt TCP 8080 8080",
	"service-object Hi TCP 9000 9100",
	"service-object Log UDP 514 514",
	"service-object Echo ICMP 8",
	"service-group Mix",
	"    service-object Web",
	"    service-object Hi",
	"    service-object Log",
	"    service-object Alt",
	"    service-object Echo",
	"    exit",
}, "\n")

func buildRegistry(t *testing.T, config string, zones ...model.Zone) (*registry.Registry, *parser.Result) {
	t.Helper()
	res, err := parser.NewSonicWallParser(strings.NewReader(config)).Parse()
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	return registry.Build(res.Statements, zones), res
}

func grpExpr(name string) model.AddressExpr {
	return model.AddressExpr{Refs: []model.Ref{{Kind: model.RefGroup, Name: name}}}
}

func objExpr(name string) model.AddressExpr {
	return model.AddressExpr{Refs: []model.Ref{{Kind: model.RefObject, Name: name}}}
}

func aclRule(id string, src, dst model.AddressRef, svc model.ServiceRef) model.ACLRule {
	return model.ACLRule{
		ID:      id,
		Text:    "access-rule ipv4 from LAN to WAN id " + id,
		SrcZone: "LAN",
		DstZone: "WAN",
		Src:     src,
		Dst:     dst,
		Service: svc,
		SrcPort: "any",
		Action:  model.Allow,
		Active:  true,
	}
}

func nameRef(n string) model.AddressRef  { return model.AddressRef{Name: n} }
func groupRef(n string) model.AddressRef { return model.AddressRef{Group: true, Name: n} }

var anyAddr = model.AddressRef{Any: true}

func mustPrefix(s string) netip.Prefix { return netip.MustParsePrefix(s) }
