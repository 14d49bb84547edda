// Package discovery implements spec.md §4.10: after the server binds its
// transport and learns its own address, it publishes that address to a
// well-known path so the client can find it without a discovery service.
// The write is atomic (tmp+rename), the same single-shot instance of the
// idiom persistence.Store uses for every snapshot write.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
)

// Publish atomically writes address to path, creating the parent
// directory if necessary.
func Publish(path, address string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("discovery: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(address), 0o644); err != nil {
		return fmt.Errorf("discovery: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("discovery: rename into place: %w", err)
	}
	return nil
}

// Read loads the server address published at path.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("discovery: read: %w", err)
	}
	return string(data), nil
}
