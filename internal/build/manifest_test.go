package build

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadManifest(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().Truncate(time.Second)
	m := &Manifest{
		Bindings:   "/out/bindings.go",
		Library:    "/out/libspdk_fat.so",
		Arch:       "arm64",
		Jobs:       8,
		HeaderHash: "h1:abc",
		BuildTime:  now,
	}
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if loaded.Library != m.Library || loaded.Bindings != m.Bindings || loaded.HeaderHash != m.HeaderHash {
		t.Errorf("loaded %+v, want %+v", loaded, m)
	}
	if !loaded.BuildTime.Truncate(time.Second).Equal(now) {
		t.Errorf("BuildTime mismatch: got %v, want %v", loaded.BuildTime, now)
	}
}

func TestLoadManifest_NotExist(t *testing.T) {
	if _, err := LoadManifest(t.TempDir()); !os.IsNotExist(err) {
		t.Fatalf("LoadManifest error = %v, want not-exist", err)
	}
}

func TestLoadManifest_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte("invalid json"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if _, err := LoadManifest(dir); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestHeaderHash(t *testing.T) {
	root := t.TempDir()
	header := filepath.Join(root, "wrapper.h")
	inc := filepath.Join(root, "include")
	writeTree(t, root, map[string]string{
		"wrapper.h":           "#include <spdk/nvme.h>\n",
		"include/spdk/nvme.h": "int spdk_nvme_probe(void);\n",
		"include/spdk/README": "not a header\n",
	})

	h1, err := HeaderHash(header, []string{inc})
	if err != nil {
		t.Fatalf("HeaderHash: %v", err)
	}
	again, _ := HeaderHash(header, []string{inc})
	if h1 != again {
		t.Errorf("hash not stable: %s vs %s", h1, again)
	}

	os.WriteFile(filepath.Join(inc, "spdk", "README"), []byte("changed\n"), 0o644)
	if h, _ := HeaderHash(header, []string{inc}); h != h1 {
		t.Error("non-header file changed the hash")
	}

	os.WriteFile(filepath.Join(inc, "spdk", "nvme.h"), []byte("int spdk_nvme_probe(int);\n"), 0o644)
	if h, _ := HeaderHash(header, []string{inc}); h == h1 {
		t.Error("header edit did not change the hash")
	}

	if _, err := HeaderHash(header, []string{filepath.Join(root, "missing")}); err == nil {
		t.Error("expected error for missing include directory")
	}
}

func TestStaleWithoutManifest(t *testing.T) {
	root := t.TempDir()
	p := newTestPipeline(t, newTestEnv(t, root, "amd64"), newMockRunner(nil))
	stale, reason, err := p.Stale()
	if err != nil || !stale || reason != "no previous build" {
		t.Errorf("Stale = %v, %q, %v", stale, reason, err)
	}
}
