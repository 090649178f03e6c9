// capsule-worker - pool worker that executes function capsules from stdin
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/capsule/capsule"
	"github.com/chazu/capsule/pool"
	"github.com/chazu/capsule/runtime"
	"github.com/chazu/capsule/store"
)

var (
	configDir  = flag.String("config", ".", "directory containing capsule.toml")
	database   = flag.String("db", "", "capsule cache path (overrides capsule.toml)")
	verbosity  = flag.Int("verbose", 0, "log verbosity (0 = quiet)")
	version    = flag.Bool("version", false, "print version and exit")
	serializer = flag.String("serializer", "", "serializer override: capsule or wire")
)

const versionStr = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "capsule-worker - executes function capsules over stdio\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  capsule-worker [options] < jobs > results\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Printf("capsule-worker version %s\n", versionStr)
		os.Exit(0)
	}

	cfg, err := pool.Load(*configDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = pool.Default()
	}
	if *serializer != "" {
		cfg.Pool.Serializer = *serializer
	}
	if *database != "" {
		cfg.Pool.Database = *database
	}
	if *verbosity > cfg.Log.Verbosity {
		cfg.Log.Verbosity = *verbosity
	}

	commonlog.Configure(cfg.Log.Verbosity, nil)
	log := commonlog.GetLogger("capsule.worker")

	if s := cfg.EffectiveSerializer(); s != pool.SerializerCapsule {
		log.Noticef("serializer %q selected; dynamic definitions will not travel by value", s)
	}

	var cache *store.DB
	if cfg.Pool.Database != "" {
		cache, err = store.OpenDB(cfg.Pool.Database)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening capsule cache: %v\n", err)
			os.Exit(1)
		}
		defer cache.Close()
	}

	eng := capsule.NewEngine(runtime.NewRuntime())
	x := pool.NewExecutor(eng, cfg, cache)

	log.Infof("capsule-worker %s ready", versionStr)
	if err := x.Serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Worker stopped: %v\n", err)
		os.Exit(1)
	}
}
