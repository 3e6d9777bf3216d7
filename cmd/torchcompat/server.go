package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-torchcompat/internal/codec"
	"github.com/23skdu/longbow-torchcompat/internal/evaluator"
	"github.com/23skdu/longbow-torchcompat/internal/ops"
)

const (
	contentTypeCBOR  = "application/cbor"
	contentTypeArrow = "application/vnd.apache.arrow.stream"

	// maxEvalBody caps the size of a CBOR evaluation request.
	maxEvalBody = 64 << 20
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torchcompat_requests_total",
		Help: "HTTP requests by handler and status code",
	}, []string{"handler", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "torchcompat_request_duration_seconds",
		Help:    "Time spent serving requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})

	rowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torchcompat_rows_processed_total",
		Help: "Arrow rows whose norm was returned",
	})
)

var tracer = otel.Tracer("torchcompat-server")

type Server struct {
	eval    *evaluator.Evaluator
	alloc   memory.Allocator
	sem     *semaphore.Weighted
	limit   int64
	maxBody int64
}

// NewServer admits at most maxConcurrent tensor elements at a time.
func NewServer(eval *evaluator.Evaluator, maxConcurrent int) *Server {
	return &Server{
		eval:    eval,
		alloc:   memory.NewGoAllocator(),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		limit:   int64(maxConcurrent),
		maxBody: maxEvalBody,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/eval", s.handleEval)
	mux.HandleFunc("/v1/norm/arrow", s.handleNormArrow)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(addr string, srv *Server) {
	log.Info().Str("addr", addr).Strs("ops", srv.eval.Ops()).Msg("Starting torchcompat server")
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// acquire blocks until weight elements may be processed. Requests larger
// than the whole budget take all of it.
func (s *Server) acquire(ctx context.Context, weight int64) (func(), error) {
	weight = max(1, min(weight, s.limit))
	if err := s.sem.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	return func() { s.sem.Release(weight) }, nil
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleEval")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("eval").Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		s.fail(w, "eval", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, err := codec.DecodeRequest(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		span.RecordError(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, "eval", http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		s.fail(w, "eval", http.StatusBadRequest, fmt.Sprintf("Bad Request (CBOR decode): %v", err))
		return
	}

	// Weigh by declared shapes, not by the data sent: a zero-size tensor
	// can still produce a large output.
	var weight int64
	for _, t := range req.Inputs {
		weight += t.Weight()
	}
	span.SetAttributes(attribute.String("op", req.Op), attribute.Int64("elements", weight))

	release, err := s.acquire(ctx, weight)
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		s.fail(w, "eval", http.StatusServiceUnavailable, "Server busy")
		return
	}
	defer release()

	out, err := s.eval.Eval(ctx, req)
	if err != nil {
		code := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, evaluator.ErrUnknownOp):
			code = http.StatusNotFound
		case errors.Is(err, evaluator.ErrInvalidInput), errors.Is(err, evaluator.ErrMissingInput):
			code = http.StatusBadRequest
		}
		s.writeCBOR(w, "eval", code, codec.Response{Error: err.Error()})
		return
	}

	wire := codec.FromDevice(out)
	s.writeCBOR(w, "eval", http.StatusOK, codec.Response{Output: &wire})
}

func (s *Server) writeCBOR(w http.ResponseWriter, handler string, code int, resp codec.Response) {
	var buf bytes.Buffer
	if err := codec.EncodeResponse(&buf, resp); err != nil {
		s.fail(w, handler, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentTypeCBOR)
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
	requestsTotal.WithLabelValues(handler, fmt.Sprint(code)).Inc()
}

func (s *Server) fail(w http.ResponseWriter, handler string, code int, msg string) {
	http.Error(w, msg, code)
	requestsTotal.WithLabelValues(handler, fmt.Sprint(code)).Inc()
}

// handleNormArrow answers an Arrow IPC stream of row vectors with a stream
// of their norms, one batch per input batch. The "ord" query parameter
// selects the order.
func (s *Server) handleNormArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleNormArrow")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("norm_arrow").Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		s.fail(w, "norm_arrow", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ord := ops.ParseOrder(r.URL.Query().Get("ord"))
	span.SetAttributes(attribute.String("ord", ord.String()))

	reader, err := ipc.NewReader(r.Body, ipc.WithAllocator(s.alloc))
	if err != nil {
		s.fail(w, "norm_arrow", http.StatusBadRequest, fmt.Sprintf("Failed to create IPC reader: %v", err))
		return
	}
	defer reader.Release()

	// Norms are buffered so that a failing batch can still produce an
	// error status.
	var out bytes.Buffer
	writer := ipc.NewWriter(&out, ipc.WithSchema(codec.NormSchema), ipc.WithAllocator(s.alloc))
	total := 0
	for reader.Next() {
		rec := reader.Record()
		norms, err := s.normBatch(ctx, rec, ord)
		if err != nil {
			_ = writer.Close()
			span.RecordError(err)
			s.fail(w, "norm_arrow", http.StatusUnprocessableEntity, err.Error())
			return
		}
		err = writer.Write(norms)
		norms.Release()
		if err != nil {
			_ = writer.Close()
			s.fail(w, "norm_arrow", http.StatusInternalServerError, err.Error())
			return
		}
		total += int(rec.NumRows())
	}
	if err := reader.Err(); err != nil {
		_ = writer.Close()
		log.Error().Err(err).Msg("Error reading Arrow stream")
		s.fail(w, "norm_arrow", http.StatusBadRequest, "Stream error")
		return
	}
	if err := writer.Close(); err != nil {
		s.fail(w, "norm_arrow", http.StatusInternalServerError, err.Error())
		return
	}

	rowsProcessed.Add(float64(total))
	w.Header().Set("Content-Type", contentTypeArrow)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Bytes())
	requestsTotal.WithLabelValues("norm_arrow", "200").Inc()
}

// normBatch computes the norms of one batch of row vectors under the
// admission semaphore.
func (s *Server) normBatch(ctx context.Context, rec arrow.RecordBatch, ord ops.Order) (arrow.RecordBatch, error) {
	col, err := codec.VectorArray(rec)
	if err != nil {
		return nil, err
	}
	rows, valid, err := codec.Rows(col)
	if err != nil {
		return nil, err
	}

	var weight int64
	for _, row := range rows {
		weight += int64(len(row))
	}
	release, err := s.acquire(ctx, weight)
	if err != nil {
		return nil, err
	}
	defer release()

	norms, err := s.eval.RowNorms(ctx, rows, valid, ord)
	if err != nil {
		return nil, err
	}
	return codec.NormRecord(s.alloc, norms, valid), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
