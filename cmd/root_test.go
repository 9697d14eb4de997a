package cmd

import (
	"bytes"
	"strings"
	"testing"

	"dnsmedic/internal/adguard"
	"dnsmedic/internal/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("9.9.9")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "dnsmedic v9.9.9\n", out)
}

func TestSubcommandsRegistered(t *testing.T) {
	root := NewRootCmd("dev")
	for _, name := range []string{"serve", "query-log", "unblock", "whitelist", "check", "auth", "api-token", "audit", "version"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestUnblockRejectsInvalidDomainBeforeConfig(t *testing.T) {
	// no config file exists at this path; validation must fail first
	_, err := execute(t, "", "--config", "/nonexistent/dnsmedic.yaml", "unblock", "bad domain")
	require.Error(t, err)

	var invalid *rules.InvalidDomainError
	assert.ErrorAs(t, err, &invalid)
}

func TestQueryLogRejectsWindowOutOfRange(t *testing.T) {
	for _, minutes := range []string{"0", "-3", "1441"} {
		_, err := execute(t, "", "--config", "/nonexistent/dnsmedic.yaml", "query-log", "--minutes", minutes)
		require.Error(t, err, minutes)
		assert.Contains(t, err.Error(), "minutes must be between 1 and 1440", minutes)
	}
}

func TestUnblockRequiresArgs(t *testing.T) {
	_, err := execute(t, "", "unblock")
	assert.Error(t, err)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}

	for _, tt := range tests {
		var prompt bytes.Buffer
		got, err := confirm(strings.NewReader(tt.input), &prompt, "Whitelist?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Whitelist? [y/N]: ", prompt.String())
	}
}

func TestPrintUnblockResult(t *testing.T) {
	var out bytes.Buffer
	printUnblockResult(&out, &adguard.UnblockResult{
		Success:            true,
		Message:            "Added 1 whitelist rule(s); 1 domain(s) were already whitelisted",
		RulesAdded:         []string{"@@||nflxvideo.net^"},
		AlreadyWhitelisted: []string{"netflix.com"},
	})

	assert.Equal(t, "Added 1 whitelist rule(s); 1 domain(s) were already whitelisted\n"+
		"  + @@||nflxvideo.net^\n"+
		"  = netflix.com (already whitelisted)\n", out.String())
}
