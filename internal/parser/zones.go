package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"sonicwall-to-mx/internal/model"
)

// LoadZones reads the zone to VLAN mapping from a CSV with "Zone" and
// "VLAN" columns. Column order does not matter and other columns are
// ignored. A blank VLAN marks a non-local zone.
func LoadZones(r io.Reader) ([]model.Zone, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	zoneCol, vlanCol := -1, -1
	for i, col := range header {
		switch {
		case strings.EqualFold(strings.TrimSpace(col), "Zone"):
			zoneCol = i
		case strings.EqualFold(strings.TrimSpace(col), "VLAN"):
			vlanCol = i
		}
	}
	if zoneCol == -1 {
		return nil, fmt.Errorf("could not find 'Zone' column in zones file")
	}

	var zones []model.Zone
	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if zoneCol >= len(record) {
			continue
		}
		name := strings.TrimSpace(record[zoneCol])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		zone := model.Zone{Name: name}
		if vlanCol >= 0 && vlanCol < len(record) {
			zone.VLAN = strings.TrimSpace(record[vlanCol])
		}
		zones = append(zones, zone)
	}
	return zones, nil
}
