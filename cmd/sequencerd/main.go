// Command sequencerd is the composition root: it wires a Sequencer to a
// TCP ingest listener speaking the wire protocol, a gRPC admin surface,
// and an optional Prometheus /metrics endpoint, and can run an
// interactive readline shell against the same Sequencer instead of (or
// alongside) the network listeners.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	sequencerconfig "github.com/akumuli/sequencer/pkg/config"
	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/ingest"
	"github.com/akumuli/sequencer/pkg/ingestretry"
	"github.com/akumuli/sequencer/pkg/logging"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/page"
	"github.com/akumuli/sequencer/pkg/sequencer"
	"github.com/akumuli/sequencer/pkg/sequenceradmin"
	"github.com/akumuli/sequencer/pkg/stats"
	"github.com/akumuli/sequencer/pkg/telemetry"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".stats"),
	readline.PcItem(".checkpoint"),
	readline.PcItem(".exit"),
	readline.PcItem("PUT"),
)

const helpText = `
sequencerd - windowed time-series ingestion daemon

Commands (interactive mode only):
  .help                        - Show this help message
  .stats                       - Print the statistics collector snapshot
  .checkpoint                  - Force a checkpoint and drain it now
  .exit                        - Exit the program

  PUT param_id timestamp value - Insert one (param_id, timestamp, value) triple
`

// cliConfig holds the flags that shape how this process runs, as opposed
// to sequencerconfig.Config, which holds the Sequencer's own tunables.
type cliConfig struct {
	ConfigPath  string
	ListenAddr  string
	AdminAddr   string
	Interactive bool
	PageID      string
	WindowSize  uint64
}

func main() {
	cli := parseFlags()

	cfg, err := loadConfig(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequencerd: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Default()
	collector := stats.NewCollector()

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequencerd: telemetry: %v\n", err)
		os.Exit(1)
	}

	seq := sequencer.NewSequencer(cfg.WindowSize, page.NewHandle(cfg.PageID),
		sequencer.WithRunLockSize(cfg.RunLockSize),
		sequencer.WithStats(collector),
		sequencer.WithLogger(logger),
		sequencer.WithTelemetry(tel),
	)

	writer, err := seq.AcquireWriter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequencerd: %v\n", err)
		os.Exit(1)
	}

	if cli.Interactive {
		runInteractive(seq, writer, collector, logger)
		return
	}

	runServer(cli, cfg, seq, writer, collector, logger, tel)
}

func parseFlags() cliConfig {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "sequencerd - windowed time-series ingestion daemon\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: sequencerd [options]\n\n")
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "", "Path to a TOML configuration file (overrides -window-size/-page-id when set)")
	listenAddr := flag.String("address", "localhost:8910", "Address the wire protocol ingest listener binds")
	adminAddr := flag.String("admin-address", "localhost:8911", "Address the gRPC admin surface binds")
	interactive := flag.Bool("interactive", false, "Run an interactive readline shell instead of the network listeners")
	pageID := flag.String("page-id", "default", "Downstream page identifier this Sequencer's merge output is tagged with")
	windowSize := flag.Uint64("window-size", 1<<20, "Checkpoint window size, in timestamp units")

	flag.Parse()

	return cliConfig{
		ConfigPath:  *configPath,
		ListenAddr:  *listenAddr,
		AdminAddr:   *adminAddr,
		Interactive: *interactive,
		PageID:      *pageID,
		WindowSize:  *windowSize,
	}
}

func loadConfig(cli cliConfig) (*sequencerconfig.Config, error) {
	if cli.ConfigPath != "" {
		return sequencerconfig.LoadTOML(cli.ConfigPath)
	}

	cfg := sequencerconfig.NewDefaultConfig(cli.PageID)
	cfg.WindowSize = cli.WindowSize
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runServer starts the ingest listener, the gRPC admin server, and (when
// configured) the Prometheus metrics endpoint, then blocks until a
// termination signal arrives.
func runServer(cli cliConfig, cfg *sequencerconfig.Config, seq *sequencer.Sequencer, writer *sequencer.Writer, collector stats.Collector, logger logging.Logger, tel telemetry.Telemetry) {
	drainer := ingest.NewDrainer(seq, collector, logger, nil)
	handler := ingest.NewHandler(seq, writer, page.NewHandle(cfg.PageID), drainer,
		ingest.WithStats(collector),
		ingest.WithLogger(logger),
		ingest.WithTelemetry(tel),
		ingest.WithBulkHandler(func(payload []byte, compressed bool) {
			logger.Debug("sequencerd: bulk string ready for downstream page, bytes=%d compressed=%v", len(payload), compressed)
		}),
	)

	listener, err := net.Listen("tcp", cli.ListenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequencerd: listen %s: %v\n", cli.ListenAddr, err)
		os.Exit(1)
	}
	logger.Info("sequencerd: ingest listener started on %s", cli.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	go acceptLoop(ctx, listener, handler, logger)

	adminServer := startAdminServer(cli.AdminAddr, seq, collector, logger)

	var metricsServer *http.Server
	if cfg.Telemetry.HasExporter("prometheus") {
		metricsServer = startMetricsServer(cfg.Telemetry.PrometheusPort, logger)
	}

	waitForShutdown(logger)

	cancel()
	listener.Close()
	adminServer.GracefulStop()
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		metricsServer.Shutdown(shutdownCtx)
		done()
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		logger.Warn("sequencerd: telemetry shutdown: %v", err)
	}
}

func acceptLoop(ctx context.Context, listener net.Listener, handler *ingest.Handler, logger logging.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("sequencerd: accept error: %v", err)
				return
			}
		}
		go handler.Serve(ctx, conn)
	}
}

func startAdminServer(addr string, seq *sequencer.Sequencer, collector stats.Collector, logger logging.Logger) *grpc.Server {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequencerd: admin listen %s: %v\n", addr, err)
		os.Exit(1)
	}

	keepaliveParams := keepalive.ServerParameters{
		MaxConnectionIdle:     60 * time.Second,
		MaxConnectionAge:      5 * time.Minute,
		MaxConnectionAgeGrace: 5 * time.Second,
		Time:                  15 * time.Second,
		Timeout:               5 * time.Second,
	}
	keepalivePolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
	)
	admin := sequenceradmin.NewServer(seq, collector, nil, sequenceradmin.WithLogger(logger))
	sequenceradmin.RegisterServer(gs, admin)

	go func() {
		if err := gs.Serve(listener); err != nil {
			logger.Warn("sequencerd: admin server error: %v", err)
		}
	}()
	logger.Info("sequencerd: admin server started on %s", addr)

	return gs
}

func startMetricsServer(port int, logger logging.Logger) *http.Server {
	_, handler, err := telemetry.NewPrometheusMeterProvider()
	if err != nil {
		logger.Warn("sequencerd: prometheus exporter unavailable: %v", err)
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("sequencerd: metrics server error: %v", err)
		}
	}()
	logger.Info("sequencerd: metrics endpoint started on :%d/metrics", port)

	return srv
}

func waitForShutdown(logger logging.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("sequencerd: received signal %v, shutting down", sig)
}

// runInteractive starts a readline shell against seq, applying PUT
// commands through the same busy-retry path a network connection uses.
func runInteractive(seq *sequencer.Sequencer, writer *sequencer.Writer, collector stats.Collector, logger logging.Logger) {
	fmt.Println("sequencerd interactive shell. Enter .help for usage hints.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sequencerd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequencerd: readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	drainer := ingest.NewDrainer(seq, collector, logger, func(item cursor.Item) {})

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == ".exit":
			return
		case line == ".help":
			fmt.Print(helpText)
		case line == ".stats":
			printStats(collector)
		case line == ".checkpoint":
			forceCheckpoint(seq, drainer)
		case strings.HasPrefix(strings.ToUpper(line), "PUT "):
			handlePut(line, writer, drainer)
		default:
			fmt.Printf("unrecognized command: %s\n", line)
		}
	}
}

func printStats(collector stats.Collector) {
	for k, v := range collector.GetStats() {
		fmt.Printf("%s: %v\n", k, v)
	}
}

func forceCheckpoint(seq *sequencer.Sequencer, drainer *ingest.Drainer) {
	checkpoint, token := seq.ForceCheckpoint()
	if !token.Owns() {
		fmt.Println("checkpoint or merge already in flight")
		return
	}
	drainer.Drain(token)
	fmt.Printf("checkpoint %d drained\n", checkpoint)
}

func handlePut(line string, writer *sequencer.Writer, drainer *ingest.Drainer) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		fmt.Println("usage: PUT param_id timestamp value")
		return
	}

	paramID, err1 := strconv.ParseUint(fields[1], 10, 64)
	timestamp, err2 := strconv.ParseUint(fields[2], 10, 64)
	value, err3 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Println("usage: PUT param_id timestamp value (all numeric)")
		return
	}

	status, token, err := ingestretry.Add(context.Background(), ingestretry.DefaultPolicy(), nil, func() (model.Status, sequencer.LockToken) {
		return writer.Add(model.NewInlineValue(timestamp, paramID, value))
	})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if token.Owns() {
		drainer.Drain(token)
	}
	fmt.Println(status)
}
