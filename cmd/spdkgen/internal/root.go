package internal

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/goplus/spdkgen/internal/build"
	"github.com/goplus/spdkgen/internal/config"
	"github.com/goplus/spdkgen/internal/env"
	"github.com/goplus/spdkgen/internal/proc"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	outDir      string
	jobs        int
	arch        string
	sourceDir   string
	verbose     bool
	strictFetch bool
	concurrent  bool
)

var rootCmd = &cobra.Command{
	Use:   "spdkgen",
	Short: "spdkgen builds SPDK into one shared library with Go bindings",
	Long: `spdkgen fetches and builds SPDK with its bundled DPDK, merges every static
archive into a single shared library and generates cgo bindings for the
public headers.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutputLevel(log.Ldebug)
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configFile, "config", "c", config.DefaultFile, "Configuration file")
	f.StringVarP(&outDir, "out-dir", "o", "", "Output directory (default $OUT_DIR)")
	f.IntVarP(&jobs, "jobs", "j", 0, "Parallel build jobs (default $NUM_JOBS or the number of CPUs)")
	f.StringVar(&arch, "arch", "", "Target architecture (default $TARGET_ARCH or $GOARCH)")
	f.StringVar(&sourceDir, "source", "", "Source root (default source.dir from the configuration)")
	f.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	f.BoolVar(&strictFetch, "strict-fetch", false, "Fail when the source tree cannot be fetched")
	f.BoolVar(&concurrent, "concurrent", false, "Link and generate bindings in parallel")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var se *build.StageError
		if errors.As(err, &se) && se.ExitCode() > 0 {
			log.Error(err)
			stop()
			os.Exit(se.ExitCode())
		}
		log.Fatal(err)
	}
}

// loadConfig reads the configuration file. The default file may be absent.
func loadConfig() (*config.Config, error) {
	return config.Load(configFile, configFile == config.DefaultFile)
}

// newEnv resolves the build environment from the flags, the process
// environment and cfg.
func newEnv(cfg *config.Config) (*env.BuildEnvironment, error) {
	opts := env.Options{
		OutDir:     outDir,
		Jobs:       jobs,
		Arch:       arch,
		SourceRoot: sourceDir,
	}
	if opts.SourceRoot == "" {
		opts.SourceRoot = cfg.Source.Dir
	}
	opts, err := env.Defaults(opts, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return env.New(opts)
}

// newPipeline builds the pipeline shared by the stage commands. Tool output
// goes to stderr so that stdout carries only results.
func newPipeline() (*build.Pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	e, err := newEnv(cfg)
	if err != nil {
		return nil, err
	}
	opts := []build.Option{
		build.WithRunner(proc.New(proc.WithOutput(os.Stderr, os.Stderr))),
	}
	if strictFetch {
		opts = append(opts, build.StrictFetch())
	}
	if concurrent {
		opts = append(opts, build.Concurrent())
	}
	return build.New(e, cfg, opts...)
}
