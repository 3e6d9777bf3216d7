package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-torchcompat/internal/client"
	"github.com/23skdu/longbow-torchcompat/internal/codec"
	"github.com/23skdu/longbow-torchcompat/internal/device"
	"github.com/23skdu/longbow-torchcompat/internal/evaluator"
)

var (
	listenAddr    = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	flightAddr    = flag.String("flight", "", "Address to listen on for Flight Server (e.g. :9090)")
	requestPath   = flag.String("request", "", "Evaluate one CBOR request file and exit")
	serverAddr    = flag.String("server", "", "Flight server to compute row norms on (with -rows)")
	rowsPath      = flag.String("rows", "", "Arrow IPC stream file of row vectors to send to -server")
	ordFlag       = flag.String("ord", "", "Norm order for -rows (e.g. 1, inf, -2); empty is the 2-norm")
	maxConcurrent = flag.Int("max-concurrent", 1<<24, "Maximum number of tensor elements processed at once")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	backend := device.NewCPUBackend()
	eval := evaluator.New(backend)
	log.Debug().Str("backend", backend.Name()).Int("ops", len(eval.Ops())).Msg("Evaluator ready")

	switch {
	case *rowsPath != "":
		if *serverAddr == "" {
			log.Fatal().Msg("-rows needs -server")
		}
		if err := remoteRowNorms(*serverAddr, *rowsPath, *ordFlag); err != nil {
			log.Fatal().Err(err).Msg("Remote row norms failed")
		}
		return

	case *requestPath != "":
		if err := evalFile(eval, *requestPath); err != nil {
			log.Fatal().Err(err).Str("file", *requestPath).Msg("Evaluation failed")
		}
		return
	}

	if *listenAddr == "" && *flightAddr == "" {
		flag.Usage()
		os.Exit(2)
	}

	srv := NewServer(eval, *maxConcurrent)
	if *listenAddr != "" {
		go startServer(*listenAddr, srv)
	}
	if *flightAddr != "" {
		StartFlightServer(*flightAddr, srv)
		return
	}
	select {}
}

// evalFile evaluates the CBOR request stored at path and logs the result.
func evalFile(eval *evaluator.Evaluator, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	req, err := codec.DecodeRequest(f)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := eval.Eval(context.Background(), req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.Op, err)
	}
	log.Info().
		Str("op", req.Op).
		Ints("shape", out.Shape()).
		Str("dtype", out.DType().String()).
		Floats64("values", out.Values()).
		Dur("elapsed", time.Since(start)).
		Msg("Evaluated request")
	return nil
}

// remoteRowNorms streams the record batches of an Arrow IPC file to a
// Flight server and logs the norms it returns.
func remoteRowNorms(addr, path, ord string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := ipc.NewReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return fmt.Errorf("open arrow stream: %w", err)
	}
	defer reader.Release()

	nc, err := client.NewNormClient(addr)
	if err != nil {
		return err
	}
	defer func() {
		if err := nc.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close flight client")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	batch := 0
	for reader.Next() {
		norms, err := nc.RowNorms(ctx, reader.Record(), ord)
		if err != nil {
			return fmt.Errorf("batch %d: %w", batch, err)
		}
		log.Info().Int("batch", batch).Floats64("norms", norms).Msg("Row norms")
		batch++
	}
	return reader.Err()
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("torchcompat"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
