package export

import (
	"fmt"
	"os"
)

// dirMaker creates planned directories lazily, once per distinct path.
// Repeated calls with the same path are no-ops; creation itself is idempotent
// via MkdirAll.
type dirMaker struct {
	made map[string]struct{}
}

func newDirMaker() *dirMaker {
	return &dirMaker{made: map[string]struct{}{}}
}

func (d *dirMaker) ensure(path string) error {
	if _, ok := d.made[path]; ok {
		return nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	d.made[path] = struct{}{}
	return nil
}
