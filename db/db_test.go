package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/xiaoyuanzhu-com/omnitool/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "test.sqlite")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_RunsMigrations(t *testing.T) {
	d := openTestDB(t)
	v, err := d.CurrentVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("expected schema version 1, got %d", v)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite")
	d, err := Open(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetItem("omnitool_active_tab", "pdf"); err != nil {
		t.Fatal(err)
	}
	d.Close()

	d, err = Open(Config{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer d.Close()
	v, ok, err := d.GetItem("omnitool_active_tab")
	if err != nil || !ok || v != "pdf" {
		t.Errorf("got %q ok=%v err=%v", v, ok, err)
	}
}

func TestRecords_SetGetRemove(t *testing.T) {
	d := openTestDB(t)

	if _, ok, err := d.GetItem("omnitool_history"); ok || err != nil {
		t.Fatalf("expected missing record, ok=%v err=%v", ok, err)
	}

	if err := d.SetItem("omnitool_history", "[]"); err != nil {
		t.Fatal(err)
	}
	if err := d.SetItem("omnitool_history", `[{"id":"a"}]`); err != nil {
		t.Fatal(err)
	}
	v, ok, err := d.GetItem("omnitool_history")
	if err != nil || !ok {
		t.Fatalf("GetItem ok=%v err=%v", ok, err)
	}
	if v != `[{"id":"a"}]` {
		t.Errorf("expected overwritten value, got %q", v)
	}

	keys, err := d.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "omnitool_history" {
		t.Errorf("unexpected keys %v", keys)
	}

	if err := d.RemoveItem("omnitool_history"); err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveItem("omnitool_history"); err != nil {
		t.Errorf("removing twice should succeed, got %v", err)
	}
	if _, ok, _ := d.GetItem("omnitool_history"); ok {
		t.Error("record should be gone")
	}
}

func TestRecords_ClosedIsUnavailable(t *testing.T) {
	d := openTestDB(t)
	d.Close()

	if err := d.SetItem("k", "v"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if _, _, err := d.GetItem("k"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestSqlar_StoreGetDelete(t *testing.T) {
	d := openTestDB(t)
	data := []byte("%PDF-1.3 fake document body")

	if err := d.SqlarStore("artifacts/abc", data, 0); err != nil {
		t.Fatal(err)
	}
	got, ok, err := d.SqlarGet("artifacts/abc")
	if err != nil || !ok {
		t.Fatalf("SqlarGet ok=%v err=%v", ok, err)
	}
	if string(got) != string(data) {
		t.Errorf("round trip mismatch: %q", got)
	}

	if err := d.SqlarStore("artifacts/def", data, 0); err != nil {
		t.Fatal(err)
	}
	if err := d.SqlarDelete("artifacts/abc"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := d.SqlarGet("artifacts/abc"); ok {
		t.Error("deleted blob still present")
	}

	n, err := d.SqlarDeletePrefix("artifacts/")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 blob deleted by prefix, got %d", n)
	}
}
