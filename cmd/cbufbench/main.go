// Command cbufbench is the bench/test driver for the ring package: an
// external collaborator per the ring's own design (it iterates and
// measures; it never implements ring semantics itself). It wires N
// producer and M consumer goroutines against one ring.Ring and reports
// whether the sums on both sides agree, mirroring scenarios S1/S2 of the
// ring package's test suite at a size the caller controls.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/AlephTX/cbuf/config"
	"github.com/AlephTX/cbuf/ring"
)

// loadDotEnv pulls CBUF_BENCH_CONFIG and friends from a local .env file if
// one exists. A missing file is not an error: most environments set these
// vars directly and never carry a .env at all.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("cbufbench: .env: %v", err)
	}
}

type options struct {
	numIter     int
	blockSize   uint32
	blockCount  uint32
	reservation uint32
	txThreads   int
	rxThreads   int
	backingDir  string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("cbufbench: %v", err)
	}
}

func run() error {
	loadDotEnv()

	opts := defaultOptions()
	if cfgPath := configPath(); cfgPath != "" {
		if err := applyConfigFile(&opts, cfgPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	showHelp := false
	flag.IntVar(&opts.numIter, "n", opts.numIter, "total iterations, split evenly across tx threads")
	blockSize := flag.Uint("s", uint(opts.blockSize), "block size, bytes")
	blockCount := flag.Uint("c", uint(opts.blockCount), "block count")
	reservation := flag.Uint("r", uint(opts.reservation), "blocks per reservation")
	flag.IntVar(&opts.txThreads, "t", opts.txThreads, "tx thread count")
	flag.IntVar(&opts.rxThreads, "x", opts.rxThreads, "rx thread count")
	flag.StringVar(&opts.backingDir, "backing-dir", opts.backingDir, "pointer-ring backing store directory (empty = inline ring)")
	flag.BoolVar(&showHelp, "h", false, "show usage")
	flag.Parse()

	if showHelp {
		flag.Usage()
		return nil
	}

	opts.blockSize = uint32(*blockSize)
	opts.blockCount = uint32(*blockCount)
	opts.reservation = uint32(*reservation)

	if opts.numIter%opts.txThreads != 0 {
		return fmt.Errorf("numiter (%d) must be divisible by tx threads (%d)", opts.numIter, opts.txThreads)
	}

	var r *ring.Ring
	var err error
	if opts.backingDir != "" {
		r, err = ring.NewPointer(opts.blockSize, opts.blockCount, opts.backingDir)
	} else {
		r, err = ring.NewInline(opts.blockSize, opts.blockCount)
	}
	if err != nil {
		return fmt.Errorf("create ring: %w", err)
	}
	defer r.Free()

	log.Printf("cbufbench: block_size=%d block_count=%d reservation=%d tx=%d rx=%d numiter=%d",
		r.BlockSize(), r.BlockCount(), opts.reservation, opts.txThreads, opts.rxThreads, opts.numIter)

	sumTx, sumRx, err := runBench(r, opts)
	if err != nil {
		return err
	}

	log.Printf("cbufbench: sum_tx=%d sum_rx=%d match=%v", sumTx, sumRx, sumTx == sumRx)
	if sumTx != sumRx {
		return fmt.Errorf("sum mismatch: tx=%d rx=%d", sumTx, sumRx)
	}
	return nil
}

func defaultOptions() options {
	return options{
		numIter:     1_000_000,
		blockSize:   8,
		blockCount:  256,
		reservation: 1,
		txThreads:   1,
		rxThreads:   1,
	}
}

func configPath() string {
	if p := os.Getenv("CBUF_BENCH_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("cbufbench.toml"); err == nil {
		return "cbufbench.toml"
	}
	return ""
}

func applyConfigFile(opts *options, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	b := cfg.Bench
	if b.NumIter != 0 {
		opts.numIter = b.NumIter
	}
	if b.BlockSize != 0 {
		opts.blockSize = b.BlockSize
	}
	if b.BlockCount != 0 {
		opts.blockCount = b.BlockCount
	}
	if b.Reservation != 0 {
		opts.reservation = b.Reservation
	}
	if b.TxThreads != 0 {
		opts.txThreads = b.TxThreads
	}
	if b.RxThreads != 0 {
		opts.rxThreads = b.RxThreads
	}
	if b.BackingDir != "" {
		opts.backingDir = b.BackingDir
	}
	return nil
}

// runBench fans producer and consumer goroutines out over r via
// errgroup.Group, so a fatal error on any one worker cancels its siblings
// instead of leaving them spinning forever against a ring nobody is
// draining anymore.
func runBench(r *ring.Ring, opts options) (sumTx, sumRx uint64, err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	perTxIter := opts.numIter / opts.txThreads
	var tallyTx, tallyRx uint64
	var produced, consumed int64
	totalBlocks := int64(opts.numIter) * int64(opts.reservation)

	for t := 0; t < opts.txThreads; t++ {
		g.Go(func() error {
			var local uint64
			for i := 0; i < perTxIter; i++ {
				n := opts.reservation
				var pos uint32
				var rerr error
				for {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					pos, rerr = r.ReserveTx(n)
					if rerr == nil {
						break
					}
					if rerr != ring.ErrNoSpace {
						return rerr
					}
				}
				for b := uint32(0); b < n; b++ {
					blk := r.Access(pos, b)
					binary.LittleEndian.PutUint64(blk[:8], uint64(i))
					local += uint64(i)
				}
				r.ReleaseTx(n)
				atomic.AddInt64(&produced, int64(n))
			}
			atomic.AddUint64(&tallyTx, local)
			return nil
		})
	}

	for c := 0; c < opts.rxThreads; c++ {
		g.Go(func() error {
			var local uint64
			for {
				if atomic.LoadInt64(&consumed) >= totalBlocks {
					break
				}
				n := opts.reservation
				pos, rerr := r.ReserveRx(n)
				if rerr != nil {
					if rerr == ring.ErrNoSpace {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						continue
					}
					return rerr
				}
				for b := uint32(0); b < n; b++ {
					blk := r.Access(pos, b)
					local += binary.LittleEndian.Uint64(blk[:8])
				}
				r.ReleaseRx(n)
				atomic.AddInt64(&consumed, int64(n))
			}
			atomic.AddUint64(&tallyRx, local)
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		return 0, 0, werr
	}
	return tallyTx, tallyRx, nil
}
