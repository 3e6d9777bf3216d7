package main

import (
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-torchcompat/internal/codec"
	"github.com/23skdu/longbow-torchcompat/internal/ops"
)

// NormFlightServer serves row norms over Flight DoExchange. The descriptor
// command of the first message carries the norm order; every record batch
// sent is answered with a batch of norms.
type NormFlightServer struct {
	flight.BaseFlightServer
	srv *Server
}

func NewNormFlightServer(srv *Server) *NormFlightServer {
	return &NormFlightServer{srv: srv}
}

func (f *NormFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	ctx, span := tracer.Start(stream.Context(), "DoExchange")
	defer span.End()

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(f.srv.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	ord := ops.OrdNone
	if desc := reader.LatestFlightDescriptor(); desc != nil {
		ord = ops.ParseOrder(string(desc.Cmd))
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(codec.NormSchema), ipc.WithAllocator(f.srv.alloc))
	for reader.Next() {
		rec := reader.Record()
		log.Debug().Int64("rows", rec.NumRows()).Str("ord", ord.String()).Msg("DoExchange received batch")

		norms, err := f.srv.normBatch(ctx, rec, ord)
		if err != nil {
			span.RecordError(err)
			_ = writer.Close()
			return err
		}
		err = writer.Write(norms)
		rowsProcessed.Add(float64(norms.NumRows()))
		norms.Release()
		if err != nil {
			_ = writer.Close()
			return err
		}
	}
	if err := reader.Err(); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// newFlightServer registers the norm service on a gRPC Flight server
// listening on addr.
func newFlightServer(addr string, srv *Server) (flight.Server, error) {
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(NewNormFlightServer(srv))
	if err := server.Init(addr); err != nil {
		return nil, err
	}
	return server, nil
}

func StartFlightServer(addr string, srv *Server) {
	server, err := newFlightServer(addr, srv)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init Flight server")
	}

	log.Info().Str("addr", server.Addr().String()).Msg("Starting torchcompat Flight server")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
