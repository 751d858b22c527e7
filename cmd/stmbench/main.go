// Command stmbench drives a synthetic transactional workload against a
// single tm.Region: a fixed pool of worker goroutines, each repeatedly
// beginning a transaction, touching a random subset of a shared address
// space, and ending it, until a requested operation count is reached or the
// process receives SIGINT or SIGTERM. It exists to exercise the engine under real concurrency and to
// report the commit/abort telemetry internal/telemetry collects.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matteosz/stm-tl2/internal/telemetry"
	"github.com/matteosz/stm-tl2/tm"
)

func fatal(code int, m string) {
	fmt.Fprintln(os.Stderr, m)
	os.Exit(code)
}

func fatalf(code int, format string, a ...interface{}) {
	w := os.Stderr
	if _, err := fmt.Fprintf(w, format, a...); err == nil {
		fmt.Fprintln(w)
	}
	os.Exit(code)
}

var (
	regionWords        int
	addressSpaceWords  int
	workerCount        int
	operationsPerRun   int
	readsPerTx         int
	writesPerTx        int
	extendedValidation bool
	metricsAddress     net.IP
	metricsPort        string
	verbose            bool
)

func init() {
	flag.IntVar(&regionWords, "region-words", 1<<20,
		`Word count of the benchmark region's fixed first segment`)
	flag.IntVar(&addressSpaceWords, "address-space-words", 4096,
		`Number of distinct addresses within the first segment that workers contend over`)
	flag.IntVar(&workerCount, "workers", 8,
		`Number of concurrent goroutines driving transactions`)
	flag.IntVar(&operationsPerRun, "operations", 200000,
		`Total number of transactions to run across all workers`)
	flag.IntVar(&readsPerTx, "reads-per-tx", 2,
		`Number of addresses read by each transaction`)
	flag.IntVar(&writesPerTx, "writes-per-tx", 1,
		`Number of addresses written by each read-write transaction`)
	flag.BoolVar(&extendedValidation, "extended-validation", false,
		`Enable GV5-style read-only snapshot extension instead of aborting on a stale read`)
	flag.IPVar(&metricsAddress, "metrics-address", nil,
		`IP address on which to serve Prometheus metrics`)
	flag.StringVar(&metricsPort, "metrics-port", "9090",
		`Port on which to serve Prometheus metrics`)
	flag.BoolVar(&verbose, "verbose", false,
		`Use a human-readable development logger instead of the production JSON logger`)
}

func joinIPAddressAndPort(address net.IP, port string) string {
	var host string
	var empty net.IP
	if !address.Equal(empty) {
		host = address.String()
	}
	return net.JoinHostPort(host, port)
}

func runMetricsServer(address net.IP, port string, registry *prometheus.Registry, stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    joinIPAddressAndPort(address, port),
		Handler: mux,
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-stop
		if err := server.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down metrics server: %v\n", err)
		}
	}()
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	wg.Wait()
	return nil
}

// worker runs transactions until remaining reaches zero or ctx is done,
// each touching a random slice of the shared address space: readsPerTx
// reads followed by writesPerTx writes. A transaction that aborts is ended
// and not retried. It returns the number of transactions it ended, whether
// they committed or aborted.
func worker(ctx context.Context, region *tm.Region, addresses []tm.Address, remaining *int64, rng *rand.Rand) int {
	completed := 0
	for atomic.AddInt64(remaining, -1) >= 0 {
		select {
		case <-ctx.Done():
			return completed
		default:
		}

		readOnly := writesPerTx == 0
		tx := region.Begin(readOnly)
		ok := true
		buf := make([]byte, 8)
		for i := 0; i < readsPerTx && ok; i++ {
			addr := addresses[rng.Intn(len(addresses))]
			ok = region.Read(tx, addr, 8, buf)
		}
		for i := 0; i < writesPerTx && ok; i++ {
			addr := addresses[rng.Intn(len(addresses))]
			rng.Read(buf)
			ok = region.Write(tx, buf, 8, addr)
		}
		region.End(tx)
		completed++
	}
	return completed
}

func main() {
	flag.Parse()

	logger, err := telemetry.NewLogger(verbose)
	if err != nil {
		fatalf(1, "Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if addressSpaceWords <= 0 {
		fatal(2, "--address-space-words must be positive")
	}

	region, err := tm.Create(regionWords*8, 8,
		tm.WithLogger(logger),
		tm.WithExtendedValidation(extendedValidation),
	)
	if err != nil {
		fatalf(1, "Failed to create region: %v", err)
	}
	defer region.Destroy()

	registry := prometheus.NewRegistry()
	for _, c := range region.Recorder().Collectors() {
		registry.MustRegister(c)
	}

	var serveErrs errgroup.Group
	serveErrs.Go(func() error {
		return runMetricsServer(metricsAddress, metricsPort, registry, ctx.Done())
	})

	addresses := make([]tm.Address, addressSpaceWords)
	base := region.Start()
	for i := range addresses {
		addresses[i] = tm.Address(uint64(base) + uint64(i))
	}

	remaining := int64(operationsPerRun)
	var wg sync.WaitGroup
	var totalCompleted int64
	start := time.Now()
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		rng := rand.New(rand.NewSource(int64(w) + 1))
		go func() {
			defer wg.Done()
			completed := worker(ctx, region, addresses, &remaining, rng)
			atomic.AddInt64(&totalCompleted, int64(completed))
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	logger.Info("benchmark run complete",
		zap.Int64("transactions", totalCompleted),
		zap.Duration("elapsed", elapsed),
		zap.Float64("transactions_per_second", float64(totalCompleted)/elapsed.Seconds()),
	)

	cancel()
	if err := serveErrs.Wait(); err != nil {
		fatalf(1, "Metrics server failed: %v", err)
	}
}
