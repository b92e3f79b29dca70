package config

import (
	"os"
	"testing"
	"time"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "server:\n  addr: \":8081\"\n")

	changes := make(chan *Config, 4)
	w, err := Watch(path, 20*time.Millisecond, func(c *Config) { changes <- c })
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	// An invalid edit is ignored.
	if err := os.WriteFile(path, []byte("log:\n  format: xml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-changes:
		t.Fatalf("invalid config delivered: %+v", c.Log)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("server:\n  addr: \":8082\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-changes:
		if c.Server.Addr != ":8082" {
			t.Errorf("reloaded addr = %s, want :8082", c.Server.Addr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after a valid change")
	}

	// Other files in the directory are not reloads.
	if err := os.WriteFile(path+".bak", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changes:
		t.Error("unrelated file triggered a reload")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_Close(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	w, err := Watch(path, time.Millisecond, func(*Config) {})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
