package adguard

// FilteringStatus is the provider's verdict for a logged DNS query
type FilteringStatus string

const (
	FilteringStatusNone            FilteringStatus = "NONE"
	FilteringStatusRequestBlocked  FilteringStatus = "REQUEST_BLOCKED"
	FilteringStatusResponseBlocked FilteringStatus = "RESPONSE_BLOCKED"
	FilteringStatusRequestAllowed  FilteringStatus = "REQUEST_ALLOWED"
	FilteringStatusResponseAllowed FilteringStatus = "RESPONSE_ALLOWED"
	FilteringStatusModified        FilteringStatus = "MODIFIED"
)

// IsBlocked reports whether the request or the response was denied
func (s FilteringStatus) IsBlocked() bool {
	return s == FilteringStatusRequestBlocked || s == FilteringStatusResponseBlocked
}

// FilteringInfo explains which rule, if any, matched a query
type FilteringInfo struct {
	FilteringStatus FilteringStatus `json:"filtering_status"`
	FilterRule      string          `json:"filter_rule,omitempty"`
	FilterID        string          `json:"filter_id,omitempty"`
}

// QueryLogEntry is one row of the provider's DNS query log
type QueryLogEntry struct {
	Domain        string        `json:"domain"`
	TimeISO       string        `json:"time_iso"`
	TimeMillis    int64         `json:"time_millis"`
	FilteringInfo FilteringInfo `json:"filtering_info"`
}

// Pages describes the provider's pagination of a query log response
type Pages struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type queryLogResponse struct {
	Items []QueryLogEntry `json:"items"`
	Pages *Pages          `json:"pages,omitempty"`
}

// BlockedDomain is a blocked query log entry as exposed to the agent
type BlockedDomain struct {
	Domain     string `json:"domain"`
	BlockedAt  string `json:"blocked_at"`
	FilterRule string `json:"filter_rule,omitempty"`
	FilterID   string `json:"filter_id,omitempty"`
}

// BlockedResult is the outcome of FetchBlocked.
// TotalQueries counts every entry on the fetched page, not the whole window.
type BlockedResult struct {
	BlockedDomains []BlockedDomain `json:"blocked_domains"`
	TotalQueries   int             `json:"total_queries"`
	// Truncated is set when the window holds more entries than one page
	Truncated bool `json:"truncated,omitempty"`
}

// UserRulesSettings is the user-defined rule list of a DNS server
type UserRulesSettings struct {
	Enabled    bool     `json:"enabled"`
	Rules      []string `json:"rules"`
	RulesCount int      `json:"rules_count,omitempty"`
}

type dnsServerResponse struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Settings struct {
		UserRulesSettings UserRulesSettings `json:"user_rules_settings"`
	} `json:"settings"`
}

type userRulesUpdate struct {
	Enabled bool     `json:"enabled"`
	Rules   []string `json:"rules"`
}

type settingsUpdate struct {
	UserRulesSettings userRulesUpdate `json:"user_rules_settings"`
}

// UnblockResult is the outcome of Unblock
type UnblockResult struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	RulesAdded         []string `json:"rules_added"`
	AlreadyWhitelisted []string `json:"already_whitelisted"`
}
