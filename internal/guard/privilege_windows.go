//go:build windows

package guard

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// enablePrivilege turns on the named privilege for the current process
// token and returns a release function that turns it back off and closes
// the token. The caller must invoke release on every exit path so the
// privilege cannot leak past the operation it was acquired for.
func enablePrivilege(name string) (release func(), err error) {
	var token windows.Token
	err = windows.OpenProcessToken(windows.CurrentProcess(),
		windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token)
	if err != nil {
		return nil, fmt.Errorf("OpenProcessToken: %w", err)
	}

	privName, err := windows.UTF16PtrFromString(name)
	if err != nil {
		_ = token.Close()
		return nil, err
	}

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, privName, &luid); err != nil {
		_ = token.Close()
		return nil, fmt.Errorf("LookupPrivilegeValue(%s): %w", name, err)
	}

	tp := windows.Tokenprivileges{PrivilegeCount: 1}
	tp.Privileges[0] = windows.LUIDAndAttributes{
		Luid:       luid,
		Attributes: windows.SE_PRIVILEGE_ENABLED,
	}
	if err := windows.AdjustTokenPrivileges(token, false, &tp, 0, nil, nil); err != nil {
		_ = token.Close()
		return nil, fmt.Errorf("AdjustTokenPrivileges(%s): %w", name, err)
	}

	release = func() {
		tp.Privileges[0].Attributes = 0
		_ = windows.AdjustTokenPrivileges(token, false, &tp, 0, nil, nil)
		_ = token.Close()
	}
	return release, nil
}
