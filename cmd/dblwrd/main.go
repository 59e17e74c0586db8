// Command dblwrd runs the doublewrite page-durability subsystem standalone
// against a system tablespace and a set of data tablespaces, for manual
// testing and as a reference wiring of core/dblwr against core/pageio and
// core/bufferpool.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sushant-115/gojodb/core/bufferpool"
	"github.com/sushant-115/gojodb/core/dblwr"
	"github.com/sushant-115/gojodb/core/dblwr/recovery"
	"github.com/sushant-115/gojodb/core/dblwr/ssdcache"
	"github.com/sushant-115/gojodb/core/pageio"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"github.com/sushant-115/gojodb/pkg/logger"
	"go.uber.org/zap"
)

const trxSysHeaderOffset = 38 // past FIL_PAGE header and trx-sys fixed fields

var (
	dataDir         = flag.String("data_dir", "/tmp/gojodb_dblwr", "directory holding the system tablespace and data files")
	pageSize        = flag.Int("page_size", 16*1024, "tablespace page size in bytes")
	blockSize       = flag.Int("doublewrite_block_size", 64, "pages per staging block (B)")
	batchSize       = flag.Int("doublewrite_batch_size", 120, "batch-region slots (K); must satisfy 0 < K < 2B")
	doublewriteOn   = flag.Bool("doublewrite_enabled", true, "stage pages before writing them to their home location")
	ssdCacheOn      = flag.Bool("ssd_cache_enabled", false, "start the SSD ring and skip staging-block recovery at startup; page writes still stage through the on-tablespace blocks")
	ssdCacheSize    = flag.Int("ssd_cache_size", 4096, "pages in the SSD ring")
	ssdCachePath    = flag.String("ssd_cache_path", "", "raw file/device backing the SSD ring")
	metricsAddr     = flag.String("metrics_addr", "127.0.0.1:9102", "address to serve /metrics on")
	aioWorkers      = flag.Int("aio_workers", 4, "number of goroutines draining the async target-write queue")
	bufferPoolPages = flag.Int("buffer_pool_pages", 4096, "frames in the demo buffer pool")
	logLevel        = flag.String("log_level", "info", "debug|info|warn|error")
)

func main() {
	flag.Parse()

	zlogger, err := logger.New(logger.Config{Level: *logLevel, Format: "console", OutputFile: "stdout", Component: "dblwrd"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dblwrd: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zlogger.Sync()

	cfg := dblwr.Config{
		Enabled:         *doublewriteOn,
		BlockSize:       *blockSize,
		BatchSize:       *batchSize,
		PageSize:        *pageSize,
		SSDCacheEnabled: *ssdCacheOn,
		SSDCacheSize:    *ssdCacheSize,
		SSDCachePath:    *ssdCachePath,
	}
	if err := cfg.Validate(); err != nil {
		zlogger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := os.MkdirAll(*dataDir, 0o750); err != nil {
		zlogger.Fatal("create data dir", zap.Error(err))
	}

	registry := pageio.NewRegistry(*aioWorkers, zlogger)
	sysSpace := pagemanager.SpaceID(0)
	sysPath := *dataDir + "/system.ibd"
	sysFile, err := pageio.OpenTablespaceFile(sysSpace, sysPath, *pageSize, false)
	if err != nil {
		sysFile, err = pageio.OpenTablespaceFile(sysSpace, sysPath, *pageSize, true)
	}
	if err != nil {
		zlogger.Fatal("open system tablespace", zap.Error(err))
	}
	registry.Mount(sysFile)

	pool := bufferpool.New(*bufferPoolPages, *pageSize, registry, zlogger)

	reg := prometheus.NewRegistry()
	metrics := dblwr.NewMetrics(reg)
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			zlogger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	oracle := pageOracle{}
	checkpoint := &noopCheckpoint{log: zlogger}
	extents := &fixedExtentAllocator{file: sysFile}
	mtr := noopMiniTransaction{}

	block1, block2, err := dblwr.Bootstrap(cfg, registry, extents, mtr, checkpoint, pool, sysSpace, trxSysHeaderOffset, *blockSize, *bufferPoolPages, 0, zlogger)
	if err != nil {
		zlogger.Fatal("doublewrite bootstrap failed", zap.Error(err))
	}

	if cfg.SSDCacheEnabled {
		if cfg.SSDCachePath == "" {
			zlogger.Fatal("ssd_cache_enabled requires ssd_cache_path")
		}
		cache, err := ssdcache.NewCache(cfg, registry, registry, metrics, zlogger)
		if err != nil {
			zlogger.Fatal("ssd cache init", zap.Error(err))
		}
		if err := cache.Start(cfg.SSDCachePath); err != nil {
			zlogger.Fatal("ssd cache start", zap.Error(err))
		}
		defer cache.Stop()
	} else {
		staged, err := recovery.LoadStagedPages(registry, sysSpace, trxSysHeaderOffset, *pageSize, *blockSize, zlogger)
		if err != nil {
			zlogger.Fatal("load staged pages", zap.Error(err))
		}
		if len(staged) > 0 {
			if err := recovery.Repair(staged, registry, registry, oracle, metrics, zlogger); err != nil {
				zlogger.Fatal("repair staged pages", zap.Error(err))
			}
		}
	}

	core := dblwr.NewCore(cfg, sysSpace, block1, block2, registry, registry, oracle, metrics, zlogger)
	writer := dblwr.NewWriter(cfg, core, registry, zlogger)
	http.HandleFunc("/debug/flush", func(w http.ResponseWriter, r *http.Request) {
		if err := writer.FlushBuffered(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	zlogger.Info("dblwrd started", zap.String("data_dir", *dataDir), zap.Uint32("block1", uint32(block1)), zap.Uint32("block2", uint32(block2)))

	stop := make(chan struct{})
	setupSignalHandling(stop, zlogger)
	<-stop
	zlogger.Info("dblwrd shutting down")
}

func setupSignalHandling(stop chan struct{}, zlogger *zap.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		zlogger.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		close(stop)
	}()
}
