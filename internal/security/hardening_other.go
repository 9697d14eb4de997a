//go:build !unix

package security

func disableCoreDumps() error { return nil }

func setSecureUmask() (int, bool) { return 0, false }
