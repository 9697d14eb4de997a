// Package security applies process hardening for a long-running agent that
// holds AdGuard DNS credentials in memory.
package security

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SensitiveEnv lists the environment variables that carry credentials.
// They are read once at startup and cleared afterwards so child processes
// and crash reports do not inherit them.
var SensitiveEnv = []string{
	"ADGUARD_ACCESS_TOKEN",
	"ADGUARD_REFRESH_TOKEN",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
}

// Hardening holds the measures applied by Apply
type Hardening struct {
	disableCoreDumps bool
	secureUmask      bool
	clearEnv         bool
}

// NewHardening returns the default hardening configuration
func NewHardening() *Hardening {
	return &Hardening{
		disableCoreDumps: true,
		secureUmask:      true,
		clearEnv:         true,
	}
}

// Apply hardens the current process. Failures are logged, not returned:
// none of them should stop the agent from serving.
func (h *Hardening) Apply() {
	if h.disableCoreDumps {
		if err := disableCoreDumps(); err != nil {
			logrus.WithError(err).Warn("Failed to disable core dumps")
		}
	}

	if h.secureUmask {
		if old, ok := setSecureUmask(); ok {
			logrus.Debugf("Changed umask from %04o to 0077", old)
		}
	}

	if h.clearEnv {
		ClearSensitiveEnv()
	}
}

// ClearSensitiveEnv unsets every variable in SensitiveEnv and returns the
// names that were set
func ClearSensitiveEnv() []string {
	var cleared []string
	for _, v := range SensitiveEnv {
		if _, ok := os.LookupEnv(v); ok {
			os.Unsetenv(v)
			cleared = append(cleared, v)
		}
	}
	if len(cleared) > 0 {
		logrus.WithField("variables", cleared).Debug("Cleared credential environment variables")
	}
	return cleared
}
