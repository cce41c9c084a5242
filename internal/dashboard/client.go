package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a minimal JSON client for the dashboard API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Network struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PolicyObject struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Type     string `json:"type"`
	CIDR     string `json:"cidr,omitempty"`
	FQDN     string `json:"fqdn,omitempty"`
}

type PolicyObjectGroup struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	ObjectIDs []string `json:"objectIds"`
}

type FirewallRule struct {
	Comment       string `json:"comment"`
	Policy        string `json:"policy"`
	Protocol      string `json:"protocol"`
	SrcPort       string `json:"srcPort"`
	SrcCidr       string `json:"srcCidr"`
	DestPort      string `json:"destPort"`
	DestCidr      string `json:"destCidr"`
	SyslogEnabled bool   `json:"syslogEnabled"`
}

type ruleList struct {
	Rules []FirewallRule `json:"rules"`
}

func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	if err := c.do(ctx, http.MethodGet, "/organizations", nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (c *Client) Networks(ctx context.Context, orgID string) ([]Network, error) {
	var nets []Network
	if err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/networks", nil, &nets); err != nil {
		return nil, err
	}
	return nets, nil
}

func (c *Client) PolicyObjects(ctx context.Context, orgID string) ([]PolicyObject, error) {
	var objs []PolicyObject
	if err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/policyObjects", nil, &objs); err != nil {
		return nil, err
	}
	return objs, nil
}

func (c *Client) CreatePolicyObject(ctx context.Context, orgID string, obj PolicyObject) (*PolicyObject, error) {
	var created PolicyObject
	if err := c.do(ctx, http.MethodPost, "/organizations/"+url.PathEscape(orgID)+"/policyObjects", obj, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) PolicyObjectGroups(ctx context.Context, orgID string) ([]PolicyObjectGroup, error) {
	var groups []PolicyObjectGroup
	if err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/policyObjects/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) CreatePolicyObjectGroup(ctx context.Context, orgID string, group PolicyObjectGroup) (*PolicyObjectGroup, error) {
	var created PolicyObjectGroup
	if err := c.do(ctx, http.MethodPost, "/organizations/"+url.PathEscape(orgID)+"/policyObjects/groups", group, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateL3FirewallRules replaces the outbound rule list of a network.
func (c *Client) UpdateL3FirewallRules(ctx context.Context, networkID string, rules []FirewallRule) error {
	return c.do(ctx, http.MethodPut, "/networks/"+url.PathEscape(networkID)+"/appliance/firewall/l3FirewallRules", ruleList{rules}, nil)
}

func (c *Client) UpdateInboundFirewallRules(ctx context.Context, networkID string, rules []FirewallRule) error {
	return c.do(ctx, http.MethodPut, "/networks/"+url.PathEscape(networkID)+"/appliance/firewall/inboundFirewallRules", ruleList{rules}, nil)
}

// UpdateVPNFirewallRules replaces the organization-wide site-to-site rule list.
func (c *Client) UpdateVPNFirewallRules(ctx context.Context, orgID string, rules []FirewallRule) error {
	return c.do(ctx, http.MethodPut, "/organizations/"+url.PathEscape(orgID)+"/appliance/vpn/vpnFirewallRules", ruleList{rules}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
