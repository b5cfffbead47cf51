//go:build !unix

package cmd

import (
	"fmt"
	"os"
)

// writable reports whether dir is an existing directory. Permissions are not
// inspected on this platform.
func writable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
