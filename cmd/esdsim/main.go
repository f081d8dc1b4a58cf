// esdsim runs the resources of a TOML manifest through the resource cache on a simulated chip, frame by
// frame, and prints the allocator's statistics.
//
// Usage:
//
//	esdsim [-frames n] [-detailed] [-v] manifest.toml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/esd"
	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/eve/sim"
	"github.com/evekit/ramg/gpualloc"
	"golang.org/x/exp/slog"
)

func main() {
	frames := flag.Int("frames", 0, "number of frames to run (default: the manifest's frame count)")
	detailed := flag.Bool("detailed", false, "include the allocation map in the statistics")
	verbose := flag.Bool("v", false, "log allocator and cache activity")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: esdsim [-frames n] [-detailed] [-v] manifest.toml\n")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))

	manifest, err := LoadManifest(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "esdsim: %v\n", err)
		os.Exit(1)
	}
	if *frames > 0 {
		manifest.Frames = *frames
	}

	stats, err := Run(context.Background(), logger, manifest, *detailed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "esdsim: %+v\n", err)
		os.Exit(1)
	}
	fmt.Println(stats)
}

// Run simulates every frame of manifest and returns the allocator statistics JSON. Load failures are
// logged and counted by the cache; only a broken manifest stops the run.
func Run(ctx context.Context, logger *slog.Logger, manifest *Manifest, detailed bool) (string, error) {
	model, err := manifest.ChipModel()
	if err != nil {
		return "", err
	}

	flash, err := manifest.FlashImage()
	if err != nil {
		return "", err
	}

	chip := sim.New(logger, model, sim.Options{Flash: flash})
	host := eve.NewHost(logger, chip, model, eve.HostOptions{
		PollMin: time.Microsecond,
		PollMax: time.Millisecond,
	})

	allocOptions, err := manifest.AllocatorOptions(model)
	if err != nil {
		return "", err
	}
	alloc, err := gpualloc.New(logger, allocOptions)
	if err != nil {
		return "", errors.Wrap(err, "creating allocator")
	}

	cacheOptions := manifest.CacheOptions()
	cache := esd.NewCache(logger, alloc, host, host.Coprocessor(), cacheOptions)

	resources := make([]*esd.ResourceInfo, len(manifest.Resources))
	var persistent []*esd.ResourceInfo
	for i := range manifest.Resources {
		resources[i], err = manifest.Resources[i].Resource(cacheOptions.Storage)
		if err != nil {
			return "", err
		}
		if resources[i].Persistent {
			persistent = append(persistent, resources[i])
		}
	}

	for frame := 0; frame < manifest.Frames; frame++ {
		_ = cache.Update(ctx, persistent...)

		for i, entry := range manifest.Resources {
			if entry.Persistent || !entry.DrawnIn(frame) {
				continue
			}
			_, _, _ = cache.Load(ctx, resources[i])
		}
	}

	cacheStats := cache.Stats()
	logger.Info("esdsim finished",
		slog.Int("Frames", manifest.Frames),
		slog.Int("Loads", cacheStats.Loads),
		slog.Int("Hits", cacheStats.Hits),
		slog.Int("Failures", cacheStats.Failures),
	)

	err = alloc.Validate()
	if err != nil {
		return "", errors.Wrap(err, "allocator state is inconsistent")
	}

	return alloc.BuildStatsString(detailed), nil
}
