package guard

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestUnderDir(t *testing.T) {
	sep := string(filepath.Separator)
	dir := filepath.Join(sep+"windows", "system32")

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"direct child", filepath.Join(dir, "kernel32.dll"), true},
		{"nested child", filepath.Join(dir, "drivers", "etc", "hosts"), true},
		{"the directory itself", dir, true},
		{"case differs", filepath.Join(sep+"Windows", "System32", "NTDLL.DLL"), true},
		{"sibling directory", filepath.Join(sep+"windows", "system32x", "a.dll"), false},
		{"parent directory", sep + "windows", false},
		{"unrelated path", filepath.Join(sep+"tmp", "target.exe"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := underDir(tt.path, dir); got != tt.want {
				t.Errorf("underDir(%q, %q) = %v, want %v", tt.path, dir, got, tt.want)
			}
		})
	}
}

func TestUnderDirEmptyDir(t *testing.T) {
	if underDir("/tmp/x", "") {
		t.Error("underDir(path, \"\") = true, want false")
	}
}

func TestCheckElevation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("elevation depends on the launching shell")
	}

	path := filepath.Join(t.TempDir(), "target.exe")
	if err := os.WriteFile(path, []byte("mz"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Check(path)
	if os.Geteuid() == 0 {
		if err != nil {
			t.Errorf("Check() as root = %v, want nil", err)
		}
	} else if !errors.Is(err, ErrNotElevated) {
		t.Errorf("Check() without elevation = %v, want ErrNotElevated", err)
	}
}
