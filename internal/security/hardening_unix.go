//go:build unix

package security

import "syscall"

func disableCoreDumps() error {
	return syscall.Setrlimit(syscall.RLIMIT_CORE, &syscall.Rlimit{Cur: 0, Max: 0})
}

func setSecureUmask() (int, bool) {
	return syscall.Umask(0077), true
}
