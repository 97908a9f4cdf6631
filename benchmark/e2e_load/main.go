// Trellis E2E Load Benchmark
//
// This benchmark answers the questions that matter under concurrent load:
// - What is the p50/p95/p99 event roundtrip latency?
// - How much allocation + GC work does that load generate?
//
// It runs the demo host in-process (or dials an external one with -url) and
// drives N concurrent real client sessions. Each client sends an event
// carrying a token payload and waits for the answering render, so the
// measured roundtrip covers:
// client send → codec encode → host decode → app render → host encode →
// client decode → store apply → UI tree materialization
//
// Run:
//   cd benchmark/e2e_load
//   go run . -clients=200 -duration=30s -rps=5 -list=50
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emmapowers/trellis-sub001/internal/devhost"
	"github.com/emmapowers/trellis-sub001/pkg/client"
	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
)

func main() {
	var (
		clients      = flag.Int("clients", 100, "number of concurrent client sessions")
		duration     = flag.Duration("duration", 15*time.Second, "how long to run the load test")
		rps          = flag.Float64("rps", 2, "target events/sec per client (best-effort, response-gated)")
		listSize     = flag.Int("list", 50, "list size rendered per session (affects tree size)")
		payloadBytes = flag.Int("payload-bytes", 24, "bytes of token payload per event")
		codecName    = flag.String("codec", "json", "session codec: json or msgpack")
		externalURL  = flag.String("url", "", "websocket URL of an external host (default: in-process)")
	)
	flag.Parse()

	if *clients <= 0 {
		log.Fatal("-clients must be > 0")
	}
	if *duration <= 0 {
		log.Fatal("-duration must be > 0")
	}
	if *rps <= 0 {
		log.Fatal("-rps must be > 0")
	}
	if *listSize < 0 {
		log.Fatal("-list must be >= 0")
	}
	if *payloadBytes < 0 {
		log.Fatal("-payload-bytes must be >= 0")
	}

	var codec protocol.Codec
	switch *codecName {
	case "json":
		codec = protocol.JSONCodec{}
	case "msgpack":
		codec = protocol.MsgpackCodec{}
	default:
		log.Fatalf("-codec must be json or msgpack, got %q", *codecName)
	}

	// Reduce incidental variability a bit.
	debug.SetGCPercent(100)

	wsURL := *externalURL
	if wsURL == "" {
		nop := slog.New(slog.NewTextHandler(io.Discard, nil))
		host := devhost.New(newBenchApp(*listSize), devhost.WithLogger(nop))
		defer host.Close()

		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		httpServer := &http.Server{Handler: host.Handler()}
		go func() {
			_ = httpServer.Serve(ln)
		}()
		defer func() {
			_ = httpServer.Shutdown(context.Background())
		}()

		wsURL = "ws://" + ln.Addr().String() + "/ws"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	samplesCh := make(chan time.Duration, 1024)
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var (
		totalEvents atomic.Uint64
		totalErrors atomic.Uint64
	)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readGCMetrics()

	var wg sync.WaitGroup
	wg.Add(*clients)
	for i := 0; i < *clients; i++ {
		go func() {
			defer wg.Done()
			if err := runClient(ctx, wsURL, codec, *rps, *payloadBytes, samplesCh, &totalEvents); err != nil {
				totalErrors.Add(1)
			}
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readGCMetrics()

	latencies := append([]time.Duration(nil), samples...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	total := totalEvents.Load()
	errs := totalErrors.Load()
	runSeconds := math.Max(0.001, (*duration).Seconds())

	fmt.Println("=== Trellis E2E Load Benchmark ===")
	fmt.Printf("Clients: %d\n", *clients)
	fmt.Printf("Duration: %s\n", (*duration).String())
	fmt.Printf("Codec: %s\n", codec.Name())
	fmt.Printf("Target per-client rate: %.2f events/s\n", *rps)
	fmt.Printf("List size: %d\n", *listSize)
	fmt.Printf("Payload bytes: %d\n", *payloadBytes)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Errors: %d\n", errs)
	fmt.Printf("Throughput: %.1f events/s\n", float64(total)/runSeconds)
	fmt.Println()

	if len(latencies) == 0 {
		fmt.Println("No latency samples recorded.")
	} else {
		fmt.Println("RTT (event send → render applied + materialized):")
		fmt.Printf("  min: %s\n", latencies[0])
		fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
		fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
		fmt.Printf("  p99: %s\n", percentile(latencies, 0.99))
		fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
	}
	fmt.Println()

	fmt.Println("Go runtime / GC (process-wide):")
	fmt.Printf("  alloc:     %.2f MB\n", float64(after.TotalAlloc-before.TotalAlloc)/(1024*1024))
	fmt.Printf("  heap_live: %.2f MB\n", float64(after.HeapAlloc)/(1024*1024))
	fmt.Printf("  num_gc:    %d\n", after.NumGC-before.NumGC)
	fmt.Printf("  gc_pause:  %s (total)\n", time.Duration(after.PauseTotalNs-before.PauseTotalNs))
	fmt.Printf("  gc_pause:  %s (avg)\n", avgPause(after, before))
	fmt.Printf("  gc_cpu:    %.2f%%\n", 100*gcCPUFraction(afterMetrics, beforeMetrics))
	fmt.Printf("  allocs:    %.2f M objects\n", float64(afterMetrics.heapAllocsObjects-beforeMetrics.heapAllocsObjects)/1_000_000)
}

// runClient drives one session: connect, then send an event and wait for
// the answering render, paced at the target rate.
func runClient(
	ctx context.Context,
	wsURL string,
	codec protocol.Codec,
	rps float64,
	payloadBytes int,
	samples chan<- time.Duration,
	totalEvents *atomic.Uint64,
) error {
	c := client.NewClient(transport.NewSocket(wsURL, transport.WithCodec(codec)))
	defer c.Disconnect()

	renders := make(chan struct{}, 8)
	remove := c.Store().Subscribe(func(client.Snapshot) {
		select {
		case renders <- struct{}{}:
		default:
		}
	})
	defer remove()

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	err := c.Connect(connectCtx)
	connectCancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect: %w", err)
	}

	token := make([]byte, (payloadBytes+1)/2)
	interval := time.Duration(float64(time.Second) / rps)

	for ctx.Err() == nil {
		// Pace: best effort, gated on the previous response.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}

		// Stale renders (mount, pushes) belong to no pending event.
		for drained := false; !drained; {
			select {
			case <-renders:
			default:
				drained = true
			}
		}

		if _, err := rand.Read(token); err != nil {
			return fmt.Errorf("token: %w", err)
		}
		payload := hex.EncodeToString(token)[:payloadBytes]

		t0 := time.Now()
		c.SendEvent(benchEcho, []any{payload})

		select {
		case <-renders:
			// Materializing the UI tree is part of the client's work.
			_ = c.Render()
			samples <- time.Since(t0)
			totalEvents.Add(1)
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Second):
			return fmt.Errorf("no render within 10s")
		}
	}
	return nil
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type gcMetricsSnapshot struct {
	cpuTotalSeconds   float64
	cpuGCSeconds      float64
	heapAllocsObjects uint64
}

func readGCMetrics() gcMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out gcMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func gcCPUFraction(after, before gcMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}
