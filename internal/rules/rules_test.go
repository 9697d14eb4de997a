package rules

import (
	"errors"
	"strings"
	"testing"
)

func TestWhitelistRule(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain domain", "nflxvideo.net", "@@||nflxvideo.net^"},
		{"Upper case", "NFLXVideo.NET", "@@||nflxvideo.net^"},
		{"Trailing dot", "example.com.", "@@||example.com^"},
		{"Surrounding space", "  example.com ", "@@||example.com^"},
		{"Subdomain", "api.cdn.example.co.uk", "@@||api.cdn.example.co.uk^"},
		{"Underscore label", "_dmarc.example.com", "@@||_dmarc.example.com^"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := WhitelistRule(tt.input)
			if err != nil {
				t.Fatalf("WhitelistRule(%q) returned error: %v", tt.input, err)
			}
			if rule != tt.expected {
				t.Errorf("WhitelistRule(%q) = %q, want %q", tt.input, rule, tt.expected)
			}
		})
	}
}

func TestWhitelistRuleRejectsInvalidDomains(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"*.example.com",
		"||example.com^",
		"example.com$important",
		"exa mple.com",
		"example..com",
		"https://example.com",
		strings.Repeat("a", 64) + ".com",
		strings.Repeat("abcdefghi.", 26) + "com",
	}

	for _, input := range inputs {
		_, err := WhitelistRule(input)
		var invalid *InvalidDomainError
		if !errors.As(err, &invalid) {
			t.Errorf("WhitelistRule(%q) error = %v, want InvalidDomainError", input, err)
		}
	}
}

func TestDomainFromRule(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		for _, domain := range []string{"a.com", "nflxvideo.net", "x-1.example.org"} {
			rule, err := WhitelistRule(domain)
			if err != nil {
				t.Fatalf("WhitelistRule(%q): %v", domain, err)
			}
			got, ok := DomainFromRule(rule)
			if !ok || got != domain {
				t.Errorf("DomainFromRule(%q) = %q, %v; want %q, true", rule, got, ok, domain)
			}
		}
	})

	t.Run("ForeignRules", func(t *testing.T) {
		for _, rule := range []string{"||ads.example.com^", "@@||a.com^$important", "@@||^", "! comment", "@@||A.com^"} {
			if d, ok := DomainFromRule(rule); ok {
				t.Errorf("DomainFromRule(%q) = %q, want not recognised", rule, d)
			}
		}
	})
}

func TestRuleSet(t *testing.T) {
	set := NewRuleSet([]string{"@@||a.com^", "||ads.net^", "@@||a.com^"})

	if !set.Contains("@@||a.com^") {
		t.Error("Expected set to contain @@||a.com^")
	}
	if set.Contains("@@||ads.net^") {
		t.Error("Blocking rule must not match exception rule")
	}
	if set.Contains("@@||A.com^") {
		t.Error("Membership must be exact string match")
	}

	set.Add("@@||b.com^")
	if !set.Contains("@@||b.com^") {
		t.Error("Expected added rule to be present")
	}
}
