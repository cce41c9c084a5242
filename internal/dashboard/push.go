package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sonicwall-to-mx/internal/engine"
	"sonicwall-to-mx/internal/model"
)

var (
	ErrOrgNotFound     = errors.New("organization not found")
	ErrNetworkNotFound = errors.New("network not found")
)

// Pusher installs a translation on one network of one organization.
type Pusher struct {
	client    *Client
	orgID     string
	networkID string

	objects map[string]string
	groups  map[string]string
}

// NewPusher looks up the organization and network by name.
func NewPusher(ctx context.Context, client *Client, orgName, networkName string) (*Pusher, error) {
	orgs, err := client.Organizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	p := &Pusher{client: client}
	for _, o := range orgs {
		if o.Name == orgName {
			p.orgID = o.ID
			break
		}
	}
	if p.orgID == "" {
		return nil, fmt.Errorf("%w: %s", ErrOrgNotFound, orgName)
	}

	nets, err := client.Networks(ctx, p.orgID)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == networkName {
			p.networkID = n.ID
			break
		}
	}
	if p.networkID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, networkName)
	}
	return p, nil
}

// Push creates the policy objects and groups of the plan that do not exist
// yet, then replaces the rule lists. The outbound list is always replaced;
// inbound and site-to-site lists only when rules were mapped to them.
func (p *Pusher) Push(ctx context.Context, plan *model.Plan, tr *engine.Translation, mapping bool) error {
	if err := p.syncObjects(ctx, plan); err != nil {
		return err
	}

	outbound, err := p.rules(tr.Outbound)
	if err != nil {
		return err
	}
	if err := p.client.UpdateL3FirewallRules(ctx, p.networkID, outbound); err != nil {
		return fmt.Errorf("update outbound rules: %w", err)
	}
	slog.Info("outbound rules written", "network", p.networkID, "rules", len(outbound))
	if !mapping {
		return nil
	}

	inbound, err := p.rules(tr.Inbound)
	if err != nil {
		return err
	}
	if err := p.client.UpdateInboundFirewallRules(ctx, p.networkID, inbound); err != nil {
		return fmt.Errorf("update inbound rules: %w", err)
	}
	slog.Info("inbound rules written", "network", p.networkID, "rules", len(inbound))

	vpn, err := p.rules(tr.SiteToSite)
	if err != nil {
		return err
	}
	if err := p.client.UpdateVPNFirewallRules(ctx, p.orgID, vpn); err != nil {
		return fmt.Errorf("update site-to-site rules: %w", err)
	}
	slog.Info("site-to-site rules written", "org", p.orgID, "rules", len(vpn))
	return nil
}

func (p *Pusher) syncObjects(ctx context.Context, plan *model.Plan) error {
	p.objects = make(map[string]string)
	p.groups = make(map[string]string)

	existing, err := p.client.PolicyObjects(ctx, p.orgID)
	if err != nil {
		return fmt.Errorf("list policy objects: %w", err)
	}
	for _, o := range existing {
		p.objects[o.Name] = o.ID
	}
	existingGroups, err := p.client.PolicyObjectGroups(ctx, p.orgID)
	if err != nil {
		return fmt.Errorf("list policy object groups: %w", err)
	}
	for _, g := range existingGroups {
		p.groups[g.Name] = g.ID
	}

	for _, o := range plan.Objects {
		if _, ok := p.objects[o.Name]; ok {
			slog.Debug("policy object exists", "name", o.Name)
			continue
		}
		created, err := p.client.CreatePolicyObject(ctx, p.orgID, PolicyObject{
			Name:     o.Name,
			Category: "network",
			Type:     o.Type,
			CIDR:     o.CIDR,
			FQDN:     o.FQDN,
		})
		if err != nil {
			return fmt.Errorf("create policy object %s: %w", o.Name, err)
		}
		p.objects[o.Name] = created.ID
	}

	for _, g := range plan.Groups {
		if _, ok := p.groups[g.Name]; ok {
			slog.Debug("policy object group exists", "name", g.Name)
			continue
		}
		ids := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			id, ok := p.objects[m]
			if !ok {
				return fmt.Errorf("group %s: member %s has no policy object", g.Name, m)
			}
			ids = append(ids, id)
		}
		created, err := p.client.CreatePolicyObjectGroup(ctx, p.orgID, PolicyObjectGroup{
			Name:      g.Name,
			Category:  "NetworkObjectGroup",
			ObjectIDs: ids,
		})
		if err != nil {
			return fmt.Errorf("create policy object group %s: %w", g.Name, err)
		}
		p.groups[g.Name] = created.ID
	}
	return nil
}

func (p *Pusher) rules(in []model.TranslatedRule) ([]FirewallRule, error) {
	out := make([]FirewallRule, 0, len(in))
	for _, r := range in {
		src, err := p.cidr(r.SrcCidr)
		if err != nil {
			return nil, err
		}
		dst, err := p.cidr(r.DestCidr)
		if err != nil {
			return nil, err
		}
		out = append(out, FirewallRule{
			Comment:       r.Comment,
			Policy:        string(r.Policy),
			Protocol:      string(r.Protocol),
			SrcPort:       r.SrcPort,
			SrcCidr:       src,
			DestPort:      r.DestPort,
			DestCidr:      dst,
			SyslogEnabled: r.SyslogEnabled,
		})
	}
	return out, nil
}

// cidr renders an address field with object and group names replaced by
// their dashboard IDs, as OBJ[id] and GRP[id].
func (p *Pusher) cidr(e model.AddressExpr) (string, error) {
	if e.Any || e.VLAN != "" {
		return e.String(), nil
	}
	parts := make([]string, 0, len(e.Refs))
	for _, ref := range e.Refs {
		ids := p.objects
		if ref.Kind == model.RefGroup {
			ids = p.groups
		}
		id, ok := ids[ref.Name]
		if !ok {
			return "", fmt.Errorf("no dashboard id for %s(%s)", ref.Kind, ref.Name)
		}
		parts = append(parts, string(ref.Kind)+"["+id+"]")
	}
	return strings.Join(parts, ","), nil
}
