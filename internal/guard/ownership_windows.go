//go:build windows

package guard

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

// winErr wraps a Windows API error, keeping the originating numeric code
// visible in the message.
func winErr(op string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fmt.Errorf("%s: %v (error %d)", op, err, uint32(errno))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// TakeOwnership grants the current principal full control over the file,
// escalating through SeTakeOwnershipPrivilege when the file is owned by
// another account. The privilege is scoped: it is dropped again on every
// exit path. Either the permissions end up correct or an error is
// returned; no partial state is left behind.
func TakeOwnership(path string) error {
	everyone, err := windows.CreateWellKnownSid(windows.WinWorldSid)
	if err != nil {
		return winErr("create Everyone SID", err)
	}
	admins, err := windows.CreateWellKnownSid(windows.WinBuiltinAdministratorsSid)
	if err != nil {
		return winErr("create Administrators SID", err)
	}

	// Read access for Everyone, full control for Administrators.
	entries := []windows.EXPLICIT_ACCESS{
		{
			AccessPermissions: windows.GENERIC_READ,
			AccessMode:        windows.SET_ACCESS,
			Inheritance:       windows.NO_INHERITANCE,
			Trustee: windows.TRUSTEE{
				TrusteeForm:  windows.TRUSTEE_IS_SID,
				TrusteeType:  windows.TRUSTEE_IS_WELL_KNOWN_GROUP,
				TrusteeValue: windows.TrusteeValueFromSID(everyone),
			},
		},
		{
			AccessPermissions: windows.GENERIC_ALL,
			AccessMode:        windows.SET_ACCESS,
			Inheritance:       windows.NO_INHERITANCE,
			Trustee: windows.TRUSTEE{
				TrusteeForm:  windows.TRUSTEE_IS_SID,
				TrusteeType:  windows.TRUSTEE_IS_GROUP,
				TrusteeValue: windows.TrusteeValueFromSID(admins),
			},
		},
	}

	acl, err := windows.ACLFromEntries(entries, nil)
	if err != nil {
		return winErr("build DACL", err)
	}

	setDACL := func() error {
		return windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
			windows.DACL_SECURITY_INFORMATION, nil, nil, acl, nil)
	}

	err = setDACL()
	if err == nil {
		return nil
	}
	if !errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return winErr("set DACL", err)
	}

	// Access denied: become the owner via the take-ownership privilege,
	// then try the DACL again.
	logrus.Debugf("DACL write denied on %s, taking ownership", path)

	release, err := enablePrivilege("SeTakeOwnershipPrivilege")
	if err != nil {
		return fmt.Errorf("enable take-ownership privilege (are you logged on as Administrator?): %w", err)
	}
	defer release()

	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.OWNER_SECURITY_INFORMATION, admins, nil, nil, nil); err != nil {
		return winErr("set owner", err)
	}

	if err := setDACL(); err != nil {
		return winErr("set DACL after ownership change", err)
	}
	return nil
}
