package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"dnsmedic/internal/adguard"
	"dnsmedic/internal/utils"
)

// MaxWindowMinutes bounds the query log window an agent may ask for
const MaxWindowMinutes = adguard.MaxWindowMinutes

// QueryLogInput defines parameters for the get-adguard-query-log tool.
type QueryLogInput struct {
	Minutes int `json:"minutes,omitempty" jsonschema:"how many minutes back to look (default 10)"`
}

// QueryLogOutput lists blocked queries in the window.
type QueryLogOutput struct {
	BlockedDomains []adguard.BlockedDomain `json:"blocked_domains"`
	TotalQueries   int                     `json:"total_queries"`
	Truncated      bool                    `json:"truncated,omitempty"`
}

// UnblockInput defines parameters for the unblock-adguard-domain tool.
type UnblockInput struct {
	Domains []string `json:"domains" jsonschema:"domains to whitelist, e.g. nflxvideo.net"`
}

// UnblockOutput reports which rules were added.
type UnblockOutput struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	RulesAdded         []string `json:"rules_added"`
	AlreadyWhitelisted []string `json:"already_whitelisted"`
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}

func (s *Server) handleQueryLog(ctx context.Context, req *mcpsdk.CallToolRequest, input QueryLogInput) (*mcpsdk.CallToolResult, QueryLogOutput, error) {
	out := QueryLogOutput{BlockedDomains: []adguard.BlockedDomain{}}

	if input.Minutes < 0 || input.Minutes > MaxWindowMinutes {
		return errorResult(fmt.Errorf("minutes must be between 1 and %d", MaxWindowMinutes)), out, nil
	}

	res, err := s.client.FetchBlocked(ctx, input.Minutes)
	if err != nil {
		logrus.WithError(err).WithField("tool", ToolQueryLog).Warn("Tool call failed")
		return errorResult(err), out, nil
	}

	out.BlockedDomains = res.BlockedDomains
	out.TotalQueries = res.TotalQueries
	out.Truncated = res.Truncated
	return nil, out, nil
}

func (s *Server) handleUnblock(ctx context.Context, req *mcpsdk.CallToolRequest, input UnblockInput) (*mcpsdk.CallToolResult, UnblockOutput, error) {
	out := UnblockOutput{RulesAdded: []string{}, AlreadyWhitelisted: []string{}}

	if len(input.Domains) == 0 {
		out.Message = "no domains given"
		return errorResult(fmt.Errorf("domains must not be empty")), out, nil
	}
	if len(input.Domains) > utils.MaxDomainsPerRequest {
		return errorResult(fmt.Errorf("at most %d domains per call", utils.MaxDomainsPerRequest)), out, nil
	}

	res, err := s.client.Unblock(ctx, input.Domains)
	if err != nil {
		logrus.WithError(err).WithField("tool", ToolUnblock).Warn("Tool call failed")
		out.Message = err.Error()
		return errorResult(err), out, nil
	}

	logrus.WithFields(logrus.Fields{
		"tool":                ToolUnblock,
		"rules_added":         len(res.RulesAdded),
		"already_whitelisted": len(res.AlreadyWhitelisted),
	}).Info("Tool call completed")

	out.Success = res.Success
	out.Message = res.Message
	out.RulesAdded = res.RulesAdded
	out.AlreadyWhitelisted = res.AlreadyWhitelisted
	return nil, out, nil
}
