package adguard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"dnsmedic/internal/audit"
	"dnsmedic/internal/config"
	"dnsmedic/internal/metrics"
	"dnsmedic/internal/rules"
	"dnsmedic/internal/utils"

	"github.com/sirupsen/logrus"
)

// UserRules reads the user-rules settings of the configured DNS server
func (c *Client) UserRules(ctx context.Context) (*UserRulesSettings, error) {
	if c.serverID == "" {
		return nil, config.Missing("adguard.serverID")
	}

	resp, err := c.do(ctx, request{
		op:     "dns_server_get",
		method: http.MethodGet,
		path:   DNSServersPath + url.PathEscape(c.serverID),
	})
	if err != nil {
		return nil, wrapTransport(err, func(e *UpstreamHTTPError) error {
			return &ConfigReadError{e}
		}, "filtering configuration read")
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, &ConfigReadError{upstreamError("filtering configuration read", resp)}
	}

	data, err := utils.ReadAllLimited(resp.Body, utils.MaxAPIResponseSize)
	if err != nil {
		return nil, &ConfigReadError{&UpstreamHTTPError{Op: "filtering configuration read", Err: err}}
	}

	var server dnsServerResponse
	if err := json.Unmarshal(data, &server); err != nil {
		return nil, &ConfigReadError{&UpstreamHTTPError{
			Op:  "filtering configuration read",
			Err: fmt.Errorf("invalid DNS server response: %w", err),
		}}
	}

	settings := server.Settings.UserRulesSettings
	if settings.Rules == nil {
		settings.Rules = []string{}
	}
	return &settings, nil
}

// Whitelisted returns the domains with a canonical exception rule in the
// server's user rules, in rule order. Other rules are ignored.
func (c *Client) Whitelisted(ctx context.Context) ([]string, error) {
	settings, err := c.UserRules(ctx)
	if err != nil {
		return nil, err
	}

	domains := []string{}
	for _, r := range settings.Rules {
		if d, ok := rules.DomainFromRule(r); ok {
			domains = append(domains, d)
		}
	}
	return domains, nil
}

func (c *Client) putUserRules(ctx context.Context, enabled bool, ruleList []string) error {
	body, err := json.Marshal(settingsUpdate{
		UserRulesSettings: userRulesUpdate{Enabled: enabled, Rules: ruleList},
	})
	if err != nil {
		return fmt.Errorf("failed to encode settings update: %w", err)
	}

	resp, err := c.do(ctx, request{
		op:     "dns_server_settings_put",
		method: http.MethodPut,
		path:   DNSServersPath + url.PathEscape(c.serverID) + serverSettingsPath,
		body:   body,
	})
	if err != nil {
		return wrapTransport(err, func(e *UpstreamHTTPError) error {
			return &ConfigWriteError{e}
		}, "filtering configuration write")
	}
	defer drainAndClose(resp)

	if !isSuccess(resp.StatusCode) {
		return &ConfigWriteError{upstreamError("filtering configuration write", resp)}
	}
	return nil
}

// Unblock adds an exception rule for every domain not already whitelisted.
// The filtering configuration is written at most once, and not at all when
// every domain is already present.
func (c *Client) Unblock(ctx context.Context, domains []string) (*UnblockResult, error) {
	if c.serverID == "" {
		return nil, config.Missing("adguard.serverID")
	}
	if len(domains) > utils.MaxDomainsPerRequest {
		return nil, fmt.Errorf("too many domains: %d (max %d)", len(domains), utils.MaxDomainsPerRequest)
	}

	wanted := make([]string, len(domains))
	for i, d := range domains {
		rule, err := rules.WhitelistRule(d)
		if err != nil {
			return nil, err
		}
		wanted[i] = rule
	}

	result := &UnblockResult{
		RulesAdded:         []string{},
		AlreadyWhitelisted: []string{},
	}
	if len(domains) == 0 {
		result.Success = true
		result.Message = "No domains to unblock"
		return result, nil
	}

	c.mutateMu.Lock()
	defer c.mutateMu.Unlock()

	current, err := c.UserRules(ctx)
	if err != nil {
		audit.LogWhitelistUpdate(c.serverID, nil, nil, err)
		return nil, err
	}

	existing := rules.NewRuleSet(current.Rules)
	queued := rules.NewRuleSet(nil)
	for i, rule := range wanted {
		switch {
		case existing.Contains(rule):
			result.AlreadyWhitelisted = append(result.AlreadyWhitelisted, domains[i])
		case queued.Contains(rule):
			// same domain given twice in one call
		default:
			queued.Add(rule)
			result.RulesAdded = append(result.RulesAdded, rule)
		}
	}

	if len(result.RulesAdded) == 0 {
		result.Success = true
		result.Message = fmt.Sprintf("All %d domain(s) are already whitelisted; no changes made", len(result.AlreadyWhitelisted))
		audit.LogWhitelistUpdate(c.serverID, result.RulesAdded, result.AlreadyWhitelisted, nil)
		return result, nil
	}

	updated := make([]string, 0, len(current.Rules)+len(result.RulesAdded))
	updated = append(updated, current.Rules...)
	updated = append(updated, result.RulesAdded...)

	if err := c.putUserRules(ctx, current.Enabled, updated); err != nil {
		audit.LogWhitelistUpdate(c.serverID, nil, result.AlreadyWhitelisted, err)
		return nil, err
	}

	metrics.RulesAdded.Add(float64(len(result.RulesAdded)))
	audit.LogWhitelistUpdate(c.serverID, result.RulesAdded, result.AlreadyWhitelisted, nil)

	result.Success = true
	result.Message = fmt.Sprintf("Added %d whitelist rule(s)", len(result.RulesAdded))
	if n := len(result.AlreadyWhitelisted); n > 0 {
		result.Message += fmt.Sprintf("; %d domain(s) were already whitelisted", n)
	}

	logrus.WithFields(logrus.Fields{
		"server_id":           c.serverID,
		"rules_added":         len(result.RulesAdded),
		"already_whitelisted": len(result.AlreadyWhitelisted),
	}).Info("Updated whitelist rules")

	return result, nil
}
