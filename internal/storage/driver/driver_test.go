package driver

import (
	"context"
	"strings"
	"testing"

	"slidedrop/internal/config"
)

func TestOpen_Local(t *testing.T) {
	dir := t.TempDir()
	st, closeFn, err := Open(context.Background(), &config.Config{
		StorageDriver:    "local",
		StorageDir:       dir,
		StoragePublicURL: "http://localhost:8080/assets",
	})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer closeFn()

	loc, err := st.Write(context.Background(), "u1/decks/a-1.pdf", strings.NewReader("pdf"), "application/pdf")
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if loc.URL != "http://localhost:8080/assets/u1/decks/a-1.pdf" {
		t.Fatalf("unexpected url %q", loc.URL)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, closeFn, err := Open(context.Background(), &config.Config{StorageDriver: "ftp"})
	closeFn()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
