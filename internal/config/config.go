// Package config loads the description of the upstream project: where its
// source lives, how to configure and build it, which archives to merge and
// which declarations to keep out of the generated bindings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goplus/spdkgen/internal/bindgen"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "spdkgen.yaml"

type Config struct {
	Source    Source    `yaml:"source"`
	Configure Configure `yaml:"configure"`
	Make      Make      `yaml:"make"`
	Archive   Archive   `yaml:"archive"`
	Bindgen   Bindgen   `yaml:"bindgen"`
	Link      Link      `yaml:"link"`
}

type Source struct {
	Dir    string `yaml:"dir"`
	Git    string `yaml:"git"`
	Remote string `yaml:"remote,omitempty"`
	Ref    string `yaml:"ref,omitempty"`
}

type Configure struct {
	Shell  string   `yaml:"shell"`
	Script string   `yaml:"script"`
	Flags  []string `yaml:"flags"`
}

type Make struct {
	Tool string   `yaml:"tool"`
	Args []string `yaml:"args,omitempty"`
	// ArchArgs maps a GOARCH name to extra variables passed to make.
	ArchArgs map[string][]string `yaml:"arch_args"`
}

type Archive struct {
	CC         string   `yaml:"cc"`
	Dirs       []string `yaml:"dirs"` // relative to the source root
	Prefix     string   `yaml:"prefix"`
	Suffix     string   `yaml:"suffix"`
	Exclude    []string `yaml:"exclude"`
	Output     string   `yaml:"output"`
	SystemLibs []string `yaml:"system_libs"`
}

type Bindgen struct {
	CC          string   `yaml:"cc"`
	Header      string   `yaml:"header"`
	IncludeDirs []string `yaml:"include_dirs"` // relative to the source root
	Defines     []string `yaml:"defines,omitempty"`
	Package     string   `yaml:"package"`
	Output      string   `yaml:"output"`

	IgnoreMacros   []string `yaml:"ignore_macros"`
	BlockItems     []string `yaml:"block_items"`
	BlockTypes     []string `yaml:"block_types"`
	BlockFunctions []string `yaml:"block_functions"`
	OpaqueTypes    []string `yaml:"opaque_types"`
}

type Link struct {
	// Libs are emitted to the host build in order. The first entry is the
	// aggregated library and is searched for in the output directory.
	Libs []string `yaml:"libs"`
}

// Default returns the configuration for SPDK with its bundled DPDK.
func Default() *Config {
	return &Config{
		Source: Source{
			Dir: "spdk",
			Git: "git",
		},
		Configure: Configure{
			Shell:  "bash",
			Script: "./configure",
			Flags:  []string{"--without-isal"},
		},
		Make: Make{
			Tool: "make",
			ArchArgs: map[string][]string{
				"arm64": {"DPDKBUILD_FLAGS=-Dplatform=generic"},
			},
		},
		Archive: Archive{
			CC:         "cc",
			Dirs:       []string{"build/lib", "dpdk/build/lib"},
			Prefix:     "lib",
			Suffix:     ".a",
			Exclude:    []string{"libspdk_ut_mock.a"},
			Output:     "libspdk_fat.so",
			SystemLibs: []string{"aio", "numa", "uuid", "crypto"},
		},
		Bindgen: Bindgen{
			CC:          "cc",
			Header:      "wrapper.h",
			IncludeDirs: []string{"build/include"},
			Package:     "spdk",
			Output:      "bindings.go",
			IgnoreMacros: []string{
				"FP_INFINITE",
				"FP_NAN",
				"FP_NORMAL",
				"FP_SUBNORMAL",
				"FP_ZERO",
			},
			BlockItems: []string{"IPPORT_*"},
			// Packed structs that contain aligned members.
			BlockTypes: []string{
				"spdk_nvme_tcp_rsp",
				"spdk_nvme_tcp_cmd",
				"spdk_nvmf_fabric_prop_get_rsp",
				"spdk_nvmf_fabric_connect_rsp",
				"spdk_nvmf_fabric_connect_cmd",
				"spdk_nvmf_fabric_auth_send_cmd",
				"spdk_nvmf_fabric_auth_recv_cmd",
				"spdk_nvme_health_information_page",
				"spdk_nvme_ctrlr_data",
			},
			BlockFunctions: []string{"spdk_nvme_ctrlr_get_data"},
			OpaqueTypes:    []string{"spdk_nvme_sgl_descriptor"},
		},
		Link: Link{
			Libs: []string{"spdk_fat", "aio", "numa", "uuid", "crypto", "stdc++", "ssl"},
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// Lists present in the document replace the default lists.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Rules returns the declaration filter rules.
func (c *Config) Rules() bindgen.Rules {
	b := c.Bindgen
	return bindgen.Rules{
		IgnoreMacros:   b.IgnoreMacros,
		BlockItems:     b.BlockItems,
		BlockTypes:     b.BlockTypes,
		BlockFunctions: b.BlockFunctions,
		OpaqueTypes:    b.OpaqueTypes,
	}
}

// Validate checks required fields and the filter rules.
func (c *Config) Validate() error {
	switch {
	case c.Source.Dir == "":
		return errors.New("config: source.dir is empty")
	case c.Configure.Script == "":
		return errors.New("config: configure.script is empty")
	case c.Make.Tool == "":
		return errors.New("config: make.tool is empty")
	case len(c.Archive.Dirs) == 0:
		return errors.New("config: archive.dirs is empty")
	case c.Archive.Output == "":
		return errors.New("config: archive.output is empty")
	case c.Bindgen.Header == "":
		return errors.New("config: bindgen.header is empty")
	case c.Bindgen.Output == "":
		return errors.New("config: bindgen.output is empty")
	case c.Bindgen.Package == "":
		return errors.New("config: bindgen.package is empty")
	case len(c.Link.Libs) == 0:
		return errors.New("config: link.libs is empty")
	}
	if _, err := bindgen.NewFilter(c.Rules()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Write encodes c as YAML.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
