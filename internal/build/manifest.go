package build

import (
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/sumdb/dirhash"
)

// Output directory layout:
//
//	outDir/
//	  .spdkgen.json     # manifest of the last successful run
//	  libspdk_fat.so    # aggregated library
//	  bindings.go       # generated bindings
const manifestFile = ".spdkgen.json"

// Manifest records the last successful run in an output directory.
type Manifest struct {
	Bindings   string    `json:"bindings"`
	Library    string    `json:"library"`
	Arch       string    `json:"arch"`
	Jobs       int       `json:"jobs"`
	HeaderHash string    `json:"header_hash"`
	BuildTime  time.Time `json:"build_time"`
}

// LoadManifest reads the manifest in outDir.
func LoadManifest(outDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(outDir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes m into outDir.
func (m *Manifest) Save(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, manifestFile), data, 0o644)
}

// HeaderHash fingerprints the umbrella header together with every header
// file below the include directories.
func HeaderHash(header string, includeDirs []string) (string, error) {
	files := []string{header}
	for _, dir := range includeDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".h") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	}
	return dirhash.Hash1(files, func(name string) (io.ReadCloser, error) {
		return os.Open(name)
	})
}

func (p *Pipeline) headerHash() (string, error) {
	g := p.generator()
	header, err := g.Header()
	if err != nil {
		return "", err
	}
	dirs, err := g.IncludeDirs(p.env)
	if err != nil {
		return "", err
	}
	return HeaderHash(header, dirs)
}

func (p *Pipeline) saveManifest(art *Artifacts) error {
	hash, err := p.headerHash()
	if err != nil {
		return err
	}
	m := &Manifest{
		Bindings:   art.Bindings,
		Library:    art.Library,
		Arch:       p.env.Arch(),
		Jobs:       p.env.Jobs(),
		HeaderHash: hash,
		BuildTime:  time.Now(),
	}
	return m.Save(p.env.OutDir())
}

// Stale reports whether the artifacts in the output directory must be
// regenerated, and why.
func (p *Pipeline) Stale() (stale bool, reason string, err error) {
	m, err := LoadManifest(p.env.OutDir())
	if err != nil {
		if os.IsNotExist(err) {
			return true, "no previous build", nil
		}
		return false, "", err
	}
	for _, path := range []string{m.Library, m.Bindings} {
		if _, err := os.Stat(path); err != nil {
			return true, "missing " + filepath.Base(path), nil
		}
	}
	if m.Arch != p.env.Arch() {
		return true, "architecture changed from " + m.Arch, nil
	}
	hash, err := p.headerHash()
	if err != nil {
		return true, err.Error(), nil
	}
	if hash != m.HeaderHash {
		return true, "headers changed", nil
	}
	return false, "up to date", nil
}
