// Package client talks to the torchcompat Flight service.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-torchcompat/internal/codec"
)

// NormClient computes row norms remotely through Flight DoExchange.
type NormClient struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *CircuitBreaker
}

// NewNormClient connects to the Flight server at addr. Calls fail fast with
// ErrCircuitOpen after five consecutive failures, for ten seconds.
func NewNormClient(addr string) (*NormClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	return &NormClient{
		client:  flight.NewClientFromConn(conn, nil),
		conn:    conn,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

// RowNorms sends rec, whose vector column holds one vector per row, and
// returns the norm of every row in the given order ("" for the 2-norm).
// Null rows come back as NaN.
func (c *NormClient) RowNorms(ctx context.Context, rec arrow.RecordBatch, ord string) ([]float64, error) {
	var norms []float64
	err := c.breaker.Do(func() error {
		var err error
		norms, err = c.exchange(ctx, rec, ord)
		return err
	})
	if err != nil {
		log.Debug().Err(err).Str("breaker", c.breaker.State().String()).Msg("Row norm exchange failed")
		return nil, err
	}
	return norms, nil
}

func (c *NormClient) exchange(ctx context.Context, rec arrow.RecordBatch, ord string) ([]float64, error) {
	stream, err := c.client.DoExchange(ctx)
	if err != nil {
		return nil, err
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  []byte(ord),
	})
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("write batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("read norms: %w", err)
	}
	defer reader.Release()

	norms := make([]float64, 0, rec.NumRows())
	for reader.Next() {
		batch, err := codec.Norms(reader.Record())
		if err != nil {
			return nil, err
		}
		norms = append(norms, batch...)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return norms, nil
}

// Close closes the client connection.
func (c *NormClient) Close() error {
	return c.conn.Close()
}
