package bindgen

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/goplus/spdkgen/internal/env"
	"github.com/goplus/spdkgen/internal/proc"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newEnv(t *testing.T, root string) *env.BuildEnvironment {
	t.Helper()
	e, err := env.New(env.Options{
		OutDir:     filepath.Join(root, "out"),
		Jobs:       1,
		Arch:       runtime.GOARCH,
		SourceRoot: filepath.Join(root, "spdk"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestPreprocessCommand(t *testing.T) {
	g := NewGenerator(nil, nil, Options{Defines: []string{"SPDK_CONFIG_X=1"}})
	cmd := g.PreprocessCommand("/src/wrapper.h", []string{"/src/spdk/build/include"})
	if cmd.Name != "cc" {
		t.Errorf("Name = %q, want cc", cmd.Name)
	}
	args := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-E -dD", "-D__attribute__(x)=", "-DSPDK_CONFIG_X=1", "-I/src/spdk/build/include /src/wrapper.h"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q lack %q", args, want)
		}
	}
	if cmd.Dir != "/src" {
		t.Errorf("Dir = %q, want /src", cmd.Dir)
	}
}

func TestGenerateMissingIncludeDir(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"wrapper.h": "int x(void);\n"})
	g := NewGenerator(proc.New(), nil, Options{
		Header:      filepath.Join(root, "wrapper.h"),
		IncludeDirs: []string{"build/include"},
		Package:     "spdk",
		Output:      "bindings.go",
	})
	if _, err := g.Generate(context.Background(), newEnv(t, root)); err == nil {
		t.Fatal("expected error for missing include directory")
	}
}

func TestGenerate(t *testing.T) {
	if _, err := exec.LookPath("cc"); err != nil {
		t.Skip("cc not found in PATH")
	}
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"wrapper.h": "#include <spdk/demo.h>\n",
		"spdk/build/include/spdk/demo.h": `#define SPDK_DEMO_VERSION 3
#define FP_NAN 0
struct spdk_demo;
struct spdk_nvme_sgl_descriptor { unsigned long address; } __attribute__((packed));
struct spdk_nvme_ctrlr_data { int vid; };
int spdk_demo_clean(struct spdk_demo *demo, unsigned int flags);
const struct spdk_nvme_ctrlr_data *spdk_nvme_ctrlr_get_data(struct spdk_demo *demo);
`,
	})
	f, err := NewFilter(spdkRules())
	if err != nil {
		t.Fatal(err)
	}
	e := newEnv(t, root)
	g := NewGenerator(proc.New(proc.WithOutput(io.Discard, io.Discard)), f, Options{
		Header:      filepath.Join(root, "wrapper.h"),
		IncludeDirs: []string{"build/include"},
		Package:     "spdk",
		Output:      "bindings.go",
		Libs:        []string{"spdk_fat", "aio"},
	})
	path, err := g.Generate(context.Background(), e)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if path != filepath.Join(e.OutDir(), "bindings.go") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := flat(string(data))
	for _, want := range []string{
		"#cgo LDFLAGS: -L" + e.OutDir() + " -lspdk_fat -laio",
		"#cgo CFLAGS: -I" + e.Path("build/include"),
		"SPDK_DEMO_VERSION = 3",
		"func SpdkDemoClean(demo *C.struct_spdk_demo, flags C.uint) C.int",
		"type SpdkNvmeSglDescriptor struct { _ [C.sizeof_struct_spdk_nvme_sgl_descriptor]byte }",
	} {
		if !strings.Contains(got, flat(want)) {
			t.Errorf("bindings lack %q:\n%s", want, data)
		}
	}
	for _, unwanted := range []string{"spdk_nvme_ctrlr_get_data", "spdk_nvme_ctrlr_data", "FP_NAN", "__attribute__"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("bindings contain %s:\n%s", unwanted, data)
		}
	}
}
