package discovery

import (
	"path/filepath"
	"testing"
)

func TestPublishThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.addr")

	if err := Publish(path, "udp://127.0.0.1:9321"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "udp://127.0.0.1:9321" {
		t.Errorf("Read = %q, want udp://127.0.0.1:9321", got)
	}
}

func TestPublishOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.addr")

	if err := Publish(path, "udp://old:1"); err != nil {
		t.Fatalf("Publish first: %v", err)
	}
	if err := Publish(path, "udp://new:2"); err != nil {
		t.Fatalf("Publish second: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "udp://new:2" {
		t.Errorf("Read = %q, want udp://new:2", got)
	}
}
