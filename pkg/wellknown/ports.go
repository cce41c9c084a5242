package wellknown

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strconv"
	"strings"

	_ "embed"

	"sonicwall-to-mx/internal/model"
)

//go:embed well_known_ports.csv
var wellKnownPortsData string

// ServiceEntry is one protocol/port range of a built-in service. ICMP
// entries carry no ports.
type ServiceEntry struct {
	Protocol  model.Protocol
	StartPort int
	EndPort   int
}

var serviceRegistry map[string][]ServiceEntry

func init() {
	serviceRegistry = make(map[string][]ServiceEntry)
	reader := csv.NewReader(bytes.NewBufferString(wellKnownPortsData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded well_known_ports.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded well_known_ports.csv: %v", err)
		}
		if len(record) < 4 {
			continue
		}

		name := strings.ToUpper(strings.TrimSpace(record[0]))
		var entry ServiceEntry
		switch strings.ToUpper(record[1]) {
		case "TCP", "UDP":
			start, err1 := strconv.Atoi(record[2])
			end, err2 := strconv.Atoi(record[3])
			if err1 != nil || err2 != nil {
				continue // Skip rows without valid ports
			}
			entry = ServiceEntry{Protocol: model.Protocol(strings.ToLower(record[1])), StartPort: start, EndPort: end}
		case "ICMP":
			entry = ServiceEntry{Protocol: model.ICMP}
		case "ICMPV6":
			entry = ServiceEntry{Protocol: model.ICMP6}
		default:
			continue
		}
		serviceRegistry[name] = append(serviceRegistry[name], entry)
	}
}

// GetService returns the protocol and ports of a built-in service name.
// Lookup ignores case.
func GetService(name string) ([]ServiceEntry, bool) {
	entry, ok := serviceRegistry[strings.ToUpper(strings.TrimSpace(name))]
	return entry, ok
}
