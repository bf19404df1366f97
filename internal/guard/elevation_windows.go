//go:build windows

package guard

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// uacEnabled reads the EnableLUA policy value. When UAC is off (or the
// value is unreadable) elevation falls back to an admin-group membership
// check, matching how the platform itself degrades.
func uacEnabled() bool {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE,
		`Software\Microsoft\Windows\CurrentVersion\Policies\System`, registry.QUERY_VALUE)
	if err != nil {
		return false
	}
	defer func() { _ = key.Close() }()

	val, _, err := key.GetIntegerValue("EnableLUA")
	return err == nil && val == 1
}

// processElevated reports whether the current process already holds
// administrative rights: token elevation under UAC, admin-group
// membership otherwise.
func processElevated() bool {
	token := windows.GetCurrentProcessToken()

	if uacEnabled() {
		return token.IsElevated()
	}

	sid, err := windows.CreateWellKnownSid(windows.WinBuiltinAdministratorsSid)
	if err != nil {
		logrus.Debugf("create administrators SID: %v", err)
		return false
	}
	member, err := token.IsMember(sid)
	if err != nil {
		logrus.Debugf("token membership check: %v", err)
		return false
	}
	return member
}

// protectedDirs returns the directory trees whose files must never be
// patched in place.
func protectedDirs() []string {
	dir, err := windows.GetSystemDirectory()
	if err != nil {
		return []string{`C:\Windows\System32`}
	}
	return []string{dir}
}
