//go:build ignore

package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-torchcompat/internal/client"
	"github.com/23skdu/longbow-torchcompat/internal/codec"
	"github.com/23skdu/longbow-torchcompat/internal/device"
)

// Checks a running torchcompat Flight server against locally known norms.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to torchcompat Flight server")

	var c *client.NormClient
	var err error
	for i := 0; i < 10; i++ {
		c, err = client.NewNormClient(addr)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("Connection failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect after retries")
	}
	defer c.Close()

	x := device.NewCPUBackend().NewTensor(device.Float32, []int{3, 4}, []float64{
		3, 4, 0, 0,
		1, -1, 1, -1,
		0, 0, -7, 0,
	})
	rec, err := codec.MatrixRecord(memory.DefaultAllocator, x)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build record")
	}
	defer rec.Release()

	cases := []struct {
		ord  string
		want []float64
	}{
		{"", []float64{5, 2, 7}},
		{"1", []float64{7, 4, 7}},
		{"inf", []float64{4, 1, 7}},
		{"0", []float64{2, 4, 1}},
	}
	for _, tc := range cases {
		start := time.Now()
		norms, err := c.RowNorms(context.Background(), rec, tc.ord)
		if err != nil {
			log.Fatal().Err(err).Str("ord", tc.ord).Msg("RowNorms failed")
		}
		log.Info().Str("ord", tc.ord).Dur("elapsed", time.Since(start)).Floats64("norms", norms).Msg("Received norms")

		if len(norms) != len(tc.want) {
			log.Fatal().Int("expected", len(tc.want)).Int("got", len(norms)).Msg("Count mismatch")
		}
		for i, v := range norms {
			if math.Abs(v-tc.want[i]) > 1e-5 {
				log.Fatal().Str("ord", tc.ord).Int("row", i).Float64("want", tc.want[i]).Float64("got", v).Msg("Norm mismatch")
			}
		}
	}

	fmt.Println("VERIFICATION PASSED")
}
