// tlcollect reads conditioned samples from a TL device at a fixed interval
// and writes them to a .bin/.csv capture pair. The .bin file holds the raw
// conditioned bytes; the .csv records one "timestamp,ones" line per sample so
// the capture can be charted without reparsing the binary.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"time"

	"github.com/phsym/console-slog"

	"github.com/mathiashelseth/tl200/entropy"
	"github.com/mathiashelseth/tl200/naming"
	"github.com/mathiashelseth/tl200/tlserial"
	"github.com/mathiashelseth/tl200/tlsim"
	"github.com/mathiashelseth/tl200/tlusb"
)

// countOnes returns the number of set bits in buf.
func countOnes(buf []byte) int {
	total := 0
	for _, b := range buf {
		total += bits.OnesCount8(b)
	}
	return total
}

func main() {
	sampleBytes := flag.Int("bytes", 2048, "conditioned bytes per sample (required > 0)")
	intervalSec := flag.Int("interval", 1, "interval between samples in seconds (required > 0)")
	sourceFlag := flag.String("source", "tlusb", "entropy source: tlusb|tlserial|tlsim")
	port := flag.String("port", "", "serial port path for -source tlserial (empty = autodetect)")
	outDir := flag.String("outdir", "data", "output directory for capture files")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{Level: level}))

	source := naming.Source(*sourceFlag)
	if err := source.Validate(); err != nil {
		logger.Error("invalid -source", "error", err)
		os.Exit(2)
	}
	if *sampleBytes <= 0 {
		logger.Error("-bytes must be > 0")
		os.Exit(2)
	}
	if *intervalSec <= 0 {
		logger.Error("-interval must be > 0")
		os.Exit(2)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("creating outdir", "path", *outDir, "error", err)
		os.Exit(1)
	}
	binPath, csvPath, err := naming.BuildBinCSVPaths(*outDir, time.Now(), source, *sampleBytes, *intervalSec)
	if err != nil {
		logger.Error("build capture paths", "error", err)
		os.Exit(1)
	}

	binFile, err := os.OpenFile(binPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		logger.Error("open bin file", "path", binPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = binFile.Close() }()
	binBuf := bufio.NewWriter(binFile)
	defer binBuf.Flush()

	csvFile, err := os.OpenFile(csvPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		logger.Error("open csv file", "path", csvPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = csvFile.Close() }()
	csvBuf := bufio.NewWriter(csvFile)
	defer csvBuf.Flush()

	tr, err := openTransport(source, *port)
	if err != nil {
		logger.Error("open source", "source", source, "error", err)
		os.Exit(1)
	}
	pipe, err := entropy.New(tr, entropy.WithLogger(logger))
	if err != nil {
		_ = tr.Close()
		logger.Error("start pipeline", "error", err)
		os.Exit(1)
	}
	defer pipe.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	interval := time.Duration(*intervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("collecting", "bytes", *sampleBytes, "interval", interval,
		"source", source, "bin", binPath, "csv", csvPath)

	sample := make([]byte, *sampleBytes)
	sampleNum := 0
	for {
		n, rerr := pipe.Read(ctx, sample)
		if rerr != nil {
			if errors.Is(rerr, context.Canceled) {
				return
			}
			// Health failures fail closed: stop collecting, keep what
			// was already written.
			logger.Error("read", "error", rerr, "failureSignature", pipe.FailureSignature())
			os.Exit(1)
		}

		if _, werr := binBuf.Write(sample[:n]); werr != nil {
			logger.Error("write bin", "error", werr)
			os.Exit(1)
		}
		_ = binBuf.Flush()

		ones := countOnes(sample[:n])
		sampleNum++
		ts := time.Now().Format("20060102T15:04:05")
		if _, werr := fmt.Fprintf(csvBuf, "%s,%d\n", ts, ones); werr != nil {
			logger.Error("write csv", "error", werr)
			os.Exit(1)
		}
		_ = csvBuf.Flush()

		fmt.Printf("sample %d: ones=%d/%d at %s\n", sampleNum, ones, n*8, ts)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func openTransport(source naming.Source, port string) (entropy.Transport, error) {
	switch source {
	case naming.SourceUSB:
		return tlusb.Open()
	case naming.SourceSerial:
		return tlserial.Open(port)
	case naming.SourceSim:
		return tlsim.New(), nil
	default:
		return nil, fmt.Errorf("unsupported source: %s", source)
	}
}
