package parser

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/utils"

	_ "github.com/go-sql-driver/mysql"
)

// Source yields the statements of one firewall export.
type Source interface {
	Load(ctx context.Context) (*Result, error)
}

// Load lets the text parser stand in wherever a Source is expected.
func (p *SonicWallParser) Load(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Parse()
}

// MariaDBSource reads an export that was previously imported into the
// firewall management database.
type MariaDBSource struct {
	db *sql.DB
}

func NewMariaDBSource(dsn string) (*MariaDBSource, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &MariaDBSource{db: db}, nil
}

func (s *MariaDBSource) Close() error {
	return s.db.Close()
}

type memberRow struct {
	Name   string `json:"name"`
	Family string `json:"family"`
	Group  bool   `json:"group"`
}

func (s *MariaDBSource) Load(ctx context.Context) (*Result, error) {
	res := &Result{}
	if err := s.loadAddresses(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to load addresses: %w", err)
	}
	if err := s.loadAddressGroups(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to load address groups: %w", err)
	}
	if err := s.loadServices(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to load services: %w", err)
	}
	if err := s.loadServiceGroups(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to load service groups: %w", err)
	}
	if err := s.loadRules(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to load access rules: %w", err)
	}
	return res, nil
}

func (s *MariaDBSource) loadAddresses(ctx context.Context, res *Result) error {
	rows, err := s.db.QueryContext(ctx, "SELECT object_name, address_type, subnet, start_ip, end_ip, fqdn, zone FROM cfg_address ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, addrType string
		var subnet, startIP, endIP, fqdn, zone sql.NullString
		if err := rows.Scan(&name, &addrType, &subnet, &startIP, &endIP, &fqdn, &zone); err != nil {
			return err
		}
		p := rowPos("cfg_address", name)

		switch addrType {
		case "ipv4":
			stmt, err := addressFromRow(p, name, subnet.String, zone.String)
			res.addRow(KindAddressObject, name, p, stmt, err)
		case "range":
			stmt := &AddressStmt{Pos: p, Name: name, Zone: zone.String}
			var err error
			if stmt.Start, err = utils.ParseIPv4(startIP.String); err == nil {
				if stmt.End, err = utils.ParseIPv4(endIP.String); err == nil && stmt.End.Less(stmt.Start) {
					err = fmt.Errorf("range start %s is after end %s", stmt.Start, stmt.End)
				}
			}
			res.addRow(KindAddressObject, name, p, stmt, err)
		case "fqdn":
			var err error
			if fqdn.String == "" {
				err = errors.New("no valid domain line")
			}
			res.addRow(KindAddressObject, name, p, &FQDNStmt{Pos: p, Name: name, Domain: fqdn.String, Zone: zone.String}, err)
		}
	}
	return rows.Err()
}

// addressFromRow accepts either a CIDR or a bare host address.
func addressFromRow(p Pos, name, subnet, zone string) (*AddressStmt, error) {
	stmt := &AddressStmt{Pos: p, Name: name, Zone: zone}
	if prefix, err := netip.ParsePrefix(subnet); err == nil {
		if !prefix.Addr().Is4() {
			return nil, fmt.Errorf("%q is not an IPv4 network", subnet)
		}
		stmt.Prefix = prefix.Masked()
		return stmt, nil
	}
	addr, err := utils.ParseIPv4(subnet)
	if err != nil {
		return nil, fmt.Errorf("invalid host address: %w", err)
	}
	stmt.Prefix = netip.PrefixFrom(addr, 32)
	return stmt, nil
}

func (s *MariaDBSource) loadAddressGroups(ctx context.Context, res *Result) error {
	rows, err := s.db.QueryContext(ctx, "SELECT group_name, family, members FROM cfg_address_group ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, family, membersJSON string
		if err := rows.Scan(&name, &family, &membersJSON); err != nil {
			return err
		}
		p := rowPos("cfg_address_group", name)
		var members []memberRow
		if err := json.Unmarshal([]byte(membersJSON), &members); err != nil {
			res.addRow(KindAddressGroup, name, p, nil, fmt.Errorf("invalid members: %w", err))
			continue
		}
		grp := &GroupStmt{Pos: p, Name: name, Family: model.Family(strings.ToLower(family))}
		for _, m := range members {
			f := model.Family(strings.ToLower(m.Family))
			if f == "" {
				f = model.FamilyIPv4
			}
			grp.Members = append(grp.Members, model.MemberRef{Name: m.Name, Group: m.Group, Family: f})
		}
		res.Statements = append(res.Statements, grp)
	}
	return rows.Err()
}

func (s *MariaDBSource) loadServices(ctx context.Context, res *Result) error {
	rows, err := s.db.QueryContext(ctx, "SELECT service_name, protocol, start_port, end_port FROM cfg_service ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, proto string
		var start, end sql.NullInt64
		if err := rows.Scan(&name, &proto, &start, &end); err != nil {
			return err
		}
		p := rowPos("cfg_service", name)
		svc := &ServiceStmt{Pos: p, Name: name, StartPort: int(start.Int64), EndPort: int(end.Int64)}
		var err error
		switch strings.ToUpper(proto) {
		case "TCP", "UDP":
			svc.Protocol = model.Protocol(strings.ToLower(proto))
			if !start.Valid || !end.Valid {
				err = errors.New("missing port numbers")
			} else if svc.EndPort < svc.StartPort {
				err = fmt.Errorf("port range %d-%d is inverted", svc.StartPort, svc.EndPort)
			}
		case "ICMP":
			svc.Protocol = model.ICMP
		case "ICMPV6":
			svc.Protocol = model.ICMP6
		default:
			err = fmt.Errorf("unsupported protocol %s", proto)
		}
		res.addRow(KindServiceObject, name, p, svc, err)
	}
	return rows.Err()
}

func (s *MariaDBSource) loadServiceGroups(ctx context.Context, res *Result) error {
	rows, err := s.db.QueryContext(ctx, "SELECT group_name, members FROM cfg_service_group ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, membersJSON string
		if err := rows.Scan(&name, &membersJSON); err != nil {
			return err
		}
		p := rowPos("cfg_service_group", name)
		var members []memberRow
		if err := json.Unmarshal([]byte(membersJSON), &members); err != nil {
			res.addRow(KindServiceGroup, name, p, nil, fmt.Errorf("invalid members: %w", err))
			continue
		}
		grp := &ServiceGroupStmt{Pos: p, Name: name}
		for _, m := range members {
			grp.Members = append(grp.Members, model.MemberRef{Name: m.Name, Group: m.Group})
		}
		res.Statements = append(res.Statements, grp)
	}
	return rows.Err()
}

// loadRules reads rules in priority order. Address and service columns hold
// the export form: "any", "name <n>" or "group <n>".
func (s *MariaDBSource) loadRules(ctx context.Context, res *Result) error {
	rows, err := s.db.QueryContext(ctx, `SELECT priority, rule_id, src_zone, dst_zone, src_address, dst_address, service, action, comment, is_enabled
		FROM cfg_access_rule ORDER BY priority ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var priority int
		var ruleID, srcZone, dstZone, srcAddr, dstAddr, svc, act, isEnabled string
		var comment sql.NullString
		if err := rows.Scan(&priority, &ruleID, &srcZone, &dstZone, &srcAddr, &dstAddr, &svc, &act, &comment, &isEnabled); err != nil {
			return err
		}
		text := fmt.Sprintf("access-rule ipv4 from %s to %s action %s source address %s service %s destination address %s", srcZone, dstZone, act, srcAddr, svc, dstAddr)
		rule := &RuleStmt{Pos: Pos{Line: priority, Text: text}, ID: ruleID, Comment: comment.String, Enabled: isEnabled == "enable"}
		err := rule.apply(fields(text)[2:])
		switch {
		case !rule.Enabled:
			err = nil
		case err == nil:
			err = rule.validate()
		}
		res.addRow(KindAccessRule, "", rule.Pos, rule, err)
	}
	return rows.Err()
}

func (r *Result) addRow(kind, name string, p Pos, stmt Statement, err error) {
	if err != nil {
		r.Failures = append(r.Failures, ParseFailure{Line: p.Line, Kind: kind, Name: name, Text: p.Text, Reason: err.Error()})
		return
	}
	r.Statements = append(r.Statements, stmt)
}

func rowPos(table, name string) Pos {
	return Pos{Text: table + ":" + name}
}
