package test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

var tmpDir string

// TempPath returns a path for name inside the directory created by Run.
func TempPath(name string) string {
	return filepath.Join(tmpDir, name)
}

func Run(m *testing.M) int {
	var err error
	tmpDir, err = os.MkdirTemp("", "xbox-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	return code
}
