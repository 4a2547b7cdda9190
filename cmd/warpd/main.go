// Command warpd runs the tick engine as a standalone process: it reads
// newline-delimited intent payloads from stdin, commits one tick per
// flushed batch, and logs each commit's hash.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/warp/config"
	"github.com/luxfi/warp/engine"
	warplog "github.com/luxfi/warp/log"
)

func main() {
	development := flag.Bool("dev", false, "use the human-readable development log encoder")
	workers := flag.Int("workers", config.Default().Workers, "BOAW worker count")
	flag.Parse()

	if err := run(*development, *workers); err != nil {
		fmt.Fprintf(os.Stderr, "warpd: %v\n", err)
		os.Exit(1)
	}
}

func run(development bool, workers int) error {
	logger, err := warplog.New(development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	cfg := config.Default().WithWorkers(workers)
	e, err := engine.New(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for {
		tx, err := e.BeginTick()
		if err != nil {
			return fmt.Errorf("begin tick: %w", err)
		}

		n := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				break // blank line flushes the accumulated batch into one tick
			}
			if _, _, err := e.IngestIntent(tx, engine.EncodeEnvelope(line)); err != nil {
				logger.Warn("rejected intent", zap.Error(err))
				continue
			}
			n++
		}
		if n == 0 {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil // EOF with nothing queued; nothing left to commit
		}

		receipt, err := e.CommitTick(tx)
		if err != nil {
			logger.Error("commit failed", zap.Error(err))
			continue
		}
		logger.Info("committed tick",
			zap.String("commit_hash", receipt.CommitHash.String()),
			zap.String("state_root", receipt.StateRoot.String()),
			zap.Int("intents", n),
		)
	}
}
