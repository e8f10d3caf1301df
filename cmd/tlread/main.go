// tlread performs a one-shot read of conditioned random bytes from a TL
// device and writes them as hex to stdout or raw to a file.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/phsym/console-slog"

	"github.com/mathiashelseth/tl200/entropy"
	"github.com/mathiashelseth/tl200/tlserial"
	"github.com/mathiashelseth/tl200/tlsim"
	"github.com/mathiashelseth/tl200/tlusb"
)

func main() {
	bytesFlag := flag.Int("bytes", 256, "number of conditioned bytes to read")
	source := flag.String("source", "tlusb", "entropy source: tlusb|tlserial|tlsim")
	port := flag.String("port", "", "serial port path for -source tlserial (empty = autodetect)")
	outFile := flag.String("out", "", "write raw bytes to this file instead of hex to stdout")
	seed := flag.Uint("seed", 0, "conditioner serial seed override (0 = random)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{Level: level}))

	if *bytesFlag <= 0 {
		logger.Error("-bytes must be > 0")
		os.Exit(2)
	}

	tr, err := openTransport(*source, *port)
	if err != nil {
		logger.Error("open source", "source", *source, "error", err)
		os.Exit(1)
	}

	opts := []entropy.Option{entropy.WithLogger(logger)}
	if *seed != 0 {
		opts = append(opts, entropy.WithSerialSeed(uint32(*seed)))
	}
	pipe, err := entropy.New(tr, opts...)
	if err != nil {
		_ = tr.Close()
		logger.Error("start pipeline", "error", err)
		os.Exit(1)
	}
	defer pipe.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	buf := make([]byte, *bytesFlag)
	n, err := pipe.Read(ctx, buf)
	if err != nil {
		logger.Error("read", "error", err, "failureSignature", pipe.FailureSignature())
		os.Exit(1)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, buf[:n], 0o644); err != nil {
			logger.Error("write output", "path", *outFile, "error", err)
			os.Exit(1)
		}
		logger.Info("wrote conditioned bytes", "bytes", n, "path", *outFile)
		return
	}
	fmt.Printf("read %d conditioned bytes from %s\n", n, *source)
	fmt.Println(hex.EncodeToString(buf[:n]))
}

// openTransport maps the -source flag onto a transport implementation.
func openTransport(source, port string) (entropy.Transport, error) {
	switch source {
	case "tlusb":
		return tlusb.Open()
	case "tlserial":
		return tlserial.Open(port)
	case "tlsim":
		return tlsim.New(), nil
	default:
		return nil, fmt.Errorf("invalid -source: %s (allowed: tlusb, tlserial, tlsim)", source)
	}
}
