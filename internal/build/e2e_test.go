package build

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/goplus/spdkgen/internal/archive"
	"github.com/goplus/spdkgen/internal/config"
	"github.com/goplus/spdkgen/internal/proc"
)

// A stand-in upstream tree: configure records its flags, make compiles two
// objects into archives under both archive directories and installs the
// public header.
var stubTree = map[string]string{
	"spdk/configure": "#!/bin/sh\necho \"$@\" > configured\n",
	"spdk/Makefile": "all:\n" +
		"\ttest -f configured\n" +
		"\tmkdir -p build/lib dpdk/build/lib build/include/spdk\n" +
		"\t$(CC) -fPIC -c a.c -o a.o\n" +
		"\t$(CC) -fPIC -c b.c -o b.o\n" +
		"\tar rcs build/lib/libspdk_demo.a a.o\n" +
		"\tar rcs dpdk/build/lib/librte_demo.a b.o\n" +
		"\tar rcs build/lib/libspdk_ut_mock.a b.o\n" +
		"\tcp demo.h build/include/spdk/demo.h\n",
	"spdk/a.c": "extern int rte_demo_value(void);\nint spdk_demo_clean(int x) { return x + rte_demo_value(); }\nint spdk_nvme_ctrlr_get_data(void) { return 0; }\n",
	"spdk/b.c": "int rte_demo_value(void) { return 41; }\n",
	"spdk/demo.h": "#define SPDK_DEMO_VERSION 1\n" +
		"int spdk_demo_clean(int x);\n" +
		"int spdk_nvme_ctrlr_get_data(void);\n",
	"wrapper.h": "#include <spdk/demo.h>\n",
}

func requireToolchain(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("end-to-end build is tested on linux only")
	}
	for _, bin := range []string{"sh", "make", "cc", "ar"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func stubConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Configure.Shell = "sh"
	cfg.Archive.SystemLibs = nil
	cfg.Bindgen.Header = filepath.Join(root, "wrapper.h")
	cfg.Link.Libs = []string{"spdk_fat"}
	return cfg
}

func TestEndToEnd(t *testing.T) {
	requireToolchain(t)
	for _, concurrent := range []bool{false, true} {
		root := t.TempDir()
		writeTree(t, root, stubTree)
		checkedOut(t, root)
		e := newTestEnv(t, root, runtime.GOARCH)

		opts := []Option{WithRunner(proc.New(proc.WithOutput(io.Discard, io.Discard)))}
		if concurrent {
			opts = append(opts, Concurrent())
		}
		p, err := New(e, stubConfig(root), opts...)
		if err != nil {
			t.Fatal(err)
		}
		art, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("concurrent=%v: Run: %v", concurrent, err)
		}

		flags, err := os.ReadFile(filepath.Join(root, "spdk", "configured"))
		if err != nil || strings.TrimSpace(string(flags)) != "--without-isal" {
			t.Errorf("configure flags = %q, %v", flags, err)
		}

		fi, err := os.Stat(art.Library)
		if err != nil || fi.Size() == 0 {
			t.Fatalf("library %s: %v", art.Library, err)
		}
		syms, err := archive.ExportedSymbols(art.Library)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"spdk_demo_clean", "rte_demo_value"} {
			if !slices.Contains(syms, want) {
				t.Errorf("%s not exported (have %v)", want, syms)
			}
		}

		data, err := os.ReadFile(art.Bindings)
		if err != nil {
			t.Fatal(err)
		}
		bindings := string(data)
		if !strings.Contains(bindings, "func SpdkDemoClean(x C.int) C.int") {
			t.Errorf("clean function missing from bindings:\n%s", bindings)
		}
		if strings.Contains(bindings, "spdk_nvme_ctrlr_get_data") {
			t.Errorf("blocklisted function present in bindings:\n%s", bindings)
		}
		if !strings.Contains(bindings, "-L"+e.OutDir()+" -lspdk_fat") {
			t.Errorf("link flags missing from bindings:\n%s", bindings)
		}

		stale, reason, err := p.Stale()
		if err != nil || stale {
			t.Errorf("Stale after build = %v, %q, %v", stale, reason, err)
		}
		demo := filepath.Join(root, "spdk", "build", "include", "spdk", "demo.h")
		if err := os.WriteFile(demo, []byte("int spdk_demo_new(void);\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if stale, reason, _ := p.Stale(); !stale || reason != "headers changed" {
			t.Errorf("Stale after header edit = %v, %q", stale, reason)
		}
	}
}
