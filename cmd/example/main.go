// Command example is a minimal demonstration of the SDK: it loads
// configuration, builds a layer.Environment, and fetches one partition
// from a versioned layer, logging progress the same way the
// teacher's worker command does.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/config"
	"github.com/heremaps/olp-sdk-go/hrn"
	"github.com/heremaps/olp-sdk-go/layer"
)

func main() {
	catalog := flag.String("catalog", "hrn:here:data::olp-here:rib-2", "catalog HRN to read from")
	layerID := flag.String("layer", "topology-geometry", "versioned layer id within the catalog")
	partitionID := flag.String("partition", "", "partition id to fetch (required)")
	version := flag.Int64("version", -1, "catalog version to read the layer at (required)")
	flag.Parse()

	if *partitionID == "" || *version < 0 {
		log.Fatal("usage: example -partition <id> -version <n> [-catalog hrn] [-layer id]")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	env, err := layer.NewEnvironment(cfg, nil, logger, nil)
	if err != nil {
		logger.Fatal("failed to build environment", zap.Error(err))
	}
	defer env.Close()

	catalogHRN, err := hrn.Parse(*catalog)
	if err != nil {
		logger.Fatal("invalid catalog hrn", zap.String("catalog", *catalog), zap.Error(err))
	}

	client := layer.NewVersionedLayerClient(catalogHRN, *layerID, env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requestCtx := cancel.New()
	go func() {
		<-ctx.Done()
		logger.Info("interrupt received, cancelling pending requests")
		client.CancelPendingRequests()
	}()

	started := time.Now()
	data, err := client.GetData(requestCtx, *version, layer.DataRequest{
		PartitionID: *partitionID,
		Fetch:       apilookup.CacheWithUpdate,
	})
	if err != nil {
		logger.Fatal("get_data failed", zap.String("partition", *partitionID), zap.Error(err))
	}

	logger.Info("fetched partition",
		zap.String("catalog", *catalog),
		zap.String("layer", *layerID),
		zap.Int64("version", *version),
		zap.String("partition", *partitionID),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(started)),
	)
	fmt.Printf("%d bytes\n", len(data))
}
