package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"sonicwall-to-mx/internal/engine"
	"sonicwall-to-mx/internal/model"
)

// Document is the JSON rule plan: the policy objects and groups to create
// and the rule lists to install. Address fields still carry names; the
// dashboard client swaps them for IDs on push.
type Document struct {
	RunID       string         `json:"runId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Objects     []PolicyObject `json:"policyObjects"`
	Groups      []PolicyGroup  `json:"policyObjectGroups"`
	Outbound    []Rule         `json:"outbound"`
	Inbound     []Rule         `json:"inbound"`
	SiteToSite  []Rule         `json:"siteToSite"`
	ZoneMatrix  []ZoneEntry    `json:"zoneMatrix"`
}

type PolicyObject struct {
	Name string `json:"name"`
	Type string `json:"type"`
	CIDR string `json:"cidr,omitempty"`
	FQDN string `json:"fqdn,omitempty"`
}

type PolicyGroup struct {
	Name    string   `json:"name"`
	Origin  string   `json:"origin"`
	Tag     string   `json:"splitTag,omitempty"`
	Members []string `json:"members"`
}

type Rule struct {
	Comment       string `json:"comment"`
	Policy        string `json:"policy"`
	Protocol      string `json:"protocol"`
	SrcPort       string `json:"srcPort"`
	SrcCidr       string `json:"srcCidr"`
	DestPort      string `json:"destPort"`
	DestCidr      string `json:"destCidr"`
	SyslogEnabled bool   `json:"syslogEnabled"`
}

type ZoneEntry struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Action      string `json:"action"`
}

// NewDocument collects the plan and the rule sets of a run.
func NewDocument(res *engine.Result, now time.Time) *Document {
	doc := &Document{
		RunID:       res.RunID,
		GeneratedAt: now.UTC(),
		Objects:     []PolicyObject{},
		Groups:      []PolicyGroup{},
		Outbound:    rules(res.Translation.Outbound),
		Inbound:     rules(res.Translation.Inbound),
		SiteToSite:  rules(res.Translation.SiteToSite),
	}
	for _, o := range res.Plan.Objects {
		doc.Objects = append(doc.Objects, PolicyObject{Name: o.Name, Type: o.Type, CIDR: o.CIDR, FQDN: o.FQDN})
	}
	for _, g := range res.Plan.Groups {
		doc.Groups = append(doc.Groups, PolicyGroup{Name: g.Name, Origin: g.Origin, Tag: string(g.Tag), Members: g.Members})
	}
	for _, e := range res.Matrix.Entries() {
		doc.ZoneMatrix = append(doc.ZoneMatrix, ZoneEntry{Source: e.SrcZone, Destination: e.DstZone, Action: string(e.Action)})
	}
	return doc
}

func rules(in []model.TranslatedRule) []Rule {
	out := make([]Rule, 0, len(in))
	for _, r := range in {
		out = append(out, Rule{
			Comment:       r.Comment,
			Policy:        string(r.Policy),
			Protocol:      string(r.Protocol),
			SrcPort:       r.SrcPort,
			SrcCidr:       r.SrcCidr.String(),
			DestPort:      r.DestPort,
			DestCidr:      r.DestCidr.String(),
			SyslogEnabled: r.SyslogEnabled,
		})
	}
	return out
}

func WriteDocument(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rule plan: %w", err)
	}
	return &doc, nil
}
