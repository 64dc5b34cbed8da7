// Package extract provides the bundle-extract command-line surface: a
// spf13/cobra root command with an "extract" default command and a
// "hashes" mode, mirroring the registry binary's RootCmd/ServeCmd/GCCmd
// split between a long-running default action and a narrower offline scan.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/distribution/bundle-extract/codec"
	"github.com/distribution/bundle-extract/codec/kraken"
	"github.com/distribution/bundle-extract/configuration"
	"github.com/distribution/bundle-extract/debugsrv"
	"github.com/distribution/bundle-extract/dispatch"
	"github.com/distribution/bundle-extract/hashutil"
	"github.com/distribution/bundle-extract/internal/xlog"
	"github.com/distribution/bundle-extract/sandbox"
	"github.com/distribution/bundle-extract/version"
	"github.com/distribution/bundle-extract/worker"
)

var (
	configPath string
	inputFlag  string
	filterFlag string
	dumpRaw    bool
	showVer    bool
)

func init() {
	RootCmd.Flags().BoolVarP(&showVer, "version", "v", false, "show the version and exit")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a bundleextract.yml configuration file")

	// input/filter/dump-raw live on RootCmd's persistent flags, not
	// ExtractCmd's own, so "bundle-extract --input X" (no subcommand)
	// and "bundle-extract extract --input X" both work: RootCmd.RunE
	// falls through to ExtractCmd's logic when no subcommand is given.
	RootCmd.PersistentFlags().StringVarP(&inputFlag, "input", "i", "", "bundle file or directory to read, overriding the configured input")
	RootCmd.PersistentFlags().StringVarP(&filterFlag, "filter", "f", "", "only extract records of this type-tag extension name")
	RootCmd.PersistentFlags().BoolVar(&dumpRaw, "dump-raw", false, "bypass extractors, writing raw blob envelopes instead")

	RootCmd.AddCommand(ExtractCmd)
	RootCmd.AddCommand(HashesCmd)
}

// RootCmd is the main command for the bundle-extract binary.
var RootCmd = &cobra.Command{
	Use:   "bundle-extract",
	Short: "`bundle-extract` unpacks offline game-bundle archives",
	Long:  "`bundle-extract` unpacks offline game-bundle archives",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVer {
			fmt.Println(version.Version())
			return nil
		}
		return runExtract(args)
	},
}

// ExtractCmd is the same default action, reachable explicitly as
// "bundle-extract extract" for scripts that prefer to name it.
var ExtractCmd = &cobra.Command{
	Use:   "extract [filter]",
	Short: "extract records from one or more bundles",
	Long:  "extract records from one or more bundles, dispatching each to its registered extractor",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(args)
	},
}

func runExtract(args []string) error {
	if len(args) > 0 && filterFlag == "" {
		filterFlag = args[0]
	}

	config, err := resolveConfiguration(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, err := configureLogging(config)
	if err != nil {
		return err
	}

	input := config.Input
	if inputFlag != "" {
		input = inputFlag
	}
	if input == "" {
		return fmt.Errorf("no input bundle or directory given (set input: in the config file or pass --input)")
	}

	bundles, err := worker.Scan(input)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		return fmt.Errorf("no bundles found under %s", input)
	}

	var filter *uint64
	if filterFlag != "" && filterFlag != "*" {
		h, ok := hashutil.HashForExtension(filterFlag)
		if !ok {
			return fmt.Errorf("unknown extension %q", filterFlag)
		}
		filter = &h
	}

	c, err := loadCodec(bundles[0].Path)
	if err != nil {
		return err
	}
	defer c.Close()

	var dict *hashutil.Dictionary
	if config.Dictionary != "" {
		dict, err = hashutil.LoadDictionary(config.Dictionary)
		if err != nil {
			return fmt.Errorf("load dictionary: %w", err)
		}
	}

	writer, err := sandbox.New(config.Output)
	if err != nil {
		return fmt.Errorf("create output sandbox: %w", err)
	}

	dedup, runID, err := loadDedup(ctx, config)
	if err != nil {
		return err
	}

	opts := &dispatch.Options{
		Writer:     writer,
		Codec:      c,
		Dictionary: dict,
		AsBlob:     dumpRaw,
	}

	var latest atomic.Pointer[worker.Snapshot]
	latest.Store(&worker.Snapshot{})

	stop, err := startDebugServer(ctx, config, func() worker.Snapshot {
		return *latest.Load()
	})
	if err != nil {
		return err
	}
	defer stop()

	xlog.From(ctx).WithField("run", runID).Infof("extracting %d bundles into %s", len(bundles), config.Output)

	result, runErr := worker.Run(ctx, config.Workers.Count, worker.RunConfig{
		Bundles:  bundles,
		Dedup:    dedup,
		Opts:     opts,
		Filter:   filter,
		Interval: time.Second,
		Report: func(snap worker.Snapshot) {
			latest.Store(&snap)
		},
	})

	xlog.From(ctx).Infof("done: bundles=%d extracted=%d deduped=%d skipped=%d bytes=%d",
		result.BundlesProcessed, result.RecordsExtracted, result.RecordsDeduped, result.RecordsSkipped, result.BytesWritten)

	return runErr
}

// HashesCmd enumerates (ext, name) pairs across all bundles and writes a
// packed binary hash table, without extracting any record payloads.
var HashesCmd = &cobra.Command{
	Use:   "hashes <output-file>",
	Short: "enumerate (ext, name) pairs across bundles into a packed hash file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := resolveConfiguration(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		if _, err := configureLogging(config); err != nil {
			return err
		}

		input := config.Input
		if inputFlag != "" {
			input = inputFlag
		}
		if input == "" {
			return fmt.Errorf("no input bundle or directory given (set input: in the config file or pass --input)")
		}

		bundles, err := worker.Scan(input)
		if err != nil {
			return err
		}

		pairs, err := worker.CollectHashes(bundles)
		if err != nil {
			return err
		}

		out, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer out.Close()

		if err := worker.WriteHashFile(out, pairs); err != nil {
			return fmt.Errorf("write hash file: %w", err)
		}

		fmt.Printf("wrote %d (ext, name) pairs to %s\n", len(pairs), args[0])
		return nil
	},
}

func resolveConfiguration(path string) (*configuration.Configuration, error) {
	if path == "" {
		if env := os.Getenv("BUNDLEEXTRACT_CONFIGURATION_PATH"); env != "" {
			path = env
		}
	}
	if path == "" {
		return configuration.Default(), nil
	}

	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	return configuration.Parse(fp)
}

func configureLogging(config *configuration.Configuration) (context.Context, error) {
	if err := xlog.Configure(xlog.Config{
		Level:     string(config.Log.Level),
		Formatter: config.Log.Formatter,
		Fields:    config.Log.Fields,
	}); err != nil {
		return nil, err
	}
	return xlog.WithFields(context.Background(), nil), nil
}

func loadCodec(bundlePath string) (codec.Codec, error) {
	c, err := kraken.Load(filepath.Dir(bundlePath))
	if err != nil {
		return nil, fmt.Errorf("load decompressor: %w", err)
	}
	return c, nil
}

func loadDedup(ctx context.Context, config *configuration.Configuration) (worker.Dedup, string, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")

	if len(config.Redis.Addrs) == 0 {
		return worker.NewMemDedup(), runID, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        config.Redis.Addrs[0],
		Username:    config.Redis.Username,
		Password:    config.Redis.Password,
		DB:          config.Redis.DB,
		DialTimeout: config.Redis.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, "", fmt.Errorf("connect to redis: %w", err)
	}
	// The Redis set is keyed on the output tree, not on runID, so separate
	// invocations writing to the same output directory share their claims.
	target, err := filepath.Abs(config.Output)
	if err != nil {
		return nil, "", fmt.Errorf("resolve output directory: %w", err)
	}
	return worker.NewRedisDedup(rdb, target), runID, nil
}

func startDebugServer(ctx context.Context, config *configuration.Configuration, snapshot debugsrv.SnapshotFunc) (stop func(), err error) {
	addr := config.Debug.Addr
	if addr == "" && config.Metrics.Enabled {
		addr = config.Metrics.Addr
	}
	if addr == "" {
		return func() {}, nil
	}

	srv := debugsrv.New(addr, config.Metrics.Path, snapshot)

	srvCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := srv.Run(srvCtx); err != nil {
			xlog.From(ctx).WithError(err).Warn("debug server exited")
		}
	}()
	return cancel, nil
}
