package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/application"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/delivery/client"
	"golang.org/x/sync/errgroup"
)

var (
	url         = flag.String("url", "http://localhost:8080", "Base URL of the rental-deposit server")
	landlord    = flag.String("landlord", "0xlandlord", "Landlord account for every created lease")
	deposit     = flag.Uint64("deposit", 1_000, "Deposit amount per lease")
	term        = flag.Duration("term", time.Hour, "Lease term length")
	concurrency = flag.Int("concurrency", 150, "Number of concurrent tenants")
	duration    = flag.Duration("duration", 30*time.Second, "Duration of the load test")
	fund        = flag.Uint64("fund", 1_000_000_000, "Faucet amount minted into every tenant before the run")
	verbose     = flag.Bool("verbose", false, "Enable verbose output")
)

type stats struct {
	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64
	latency atomic.Int64
}

func (s *stats) print(elapsed time.Duration) {
	total := s.total.Load()

	var avgLatency float64
	if total > 0 {
		avgLatency = float64(s.latency.Load()) / float64(total) / float64(time.Millisecond)
	}

	fmt.Printf("\rRequests: %d, Success: %d, Failed: %d, RPS: %.2f, Avg Latency: %.2f ms",
		total, s.success.Load(), s.failed.Load(), float64(total)/elapsed.Seconds(), avgLatency)
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	s := &stats{}
	startTime := time.Now()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.print(time.Since(startTime))
			}
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < *concurrency; i++ {
		tenant := fmt.Sprintf("0xtenant-%d", i)
		g.Go(func() error {
			return runTenant(gCtx, client.New(*url, tenant), tenant, s)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("Load test aborted: %v", err)
	}

	elapsed := time.Since(startTime)
	total := s.total.Load()
	fmt.Printf("\n\nLoad test completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Total requests: %d\n", total)
	fmt.Printf("Successful requests: %d\n", s.success.Load())
	fmt.Printf("Failed requests: %d\n", s.failed.Load())
	fmt.Printf("Requests per second: %.2f\n", float64(total)/elapsed.Seconds())

	if total > 0 {
		fmt.Printf("Average latency: %.2f ms\n", float64(s.latency.Load())/float64(total)/float64(time.Millisecond))
	}
}

func runTenant(ctx context.Context, c *client.Client, tenant string, s *stats) error {
	if _, err := c.Fund(ctx, tenant, *fund); err != nil {
		return fmt.Errorf("failed to fund %v: %w", tenant, err)
	}

	for ctx.Err() == nil {
		now := uint64(time.Now().Unix())
		start := time.Now()
		leaseID, err := c.CreateLease(ctx, application.CreateLeaseRequest{
			Landlord:      escrow.Account(*landlord),
			DepositAmount: *deposit,
			StartDate:     now,
			EndDate:       now + uint64(term.Seconds()),
			AttachedValue: *deposit,
		})
		s.latency.Add(int64(time.Since(start)))
		s.total.Add(1)

		switch {
		case err == nil:
			s.success.Add(1)
			if *verbose {
				log.Debugf("%v created lease %d", tenant, leaseID)
			}
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			s.total.Add(-1)
			return nil
		default:
			s.failed.Add(1)
			if *verbose {
				log.Warnf("%v failed to create lease: %v", tenant, err)
			}
		}
	}

	return nil
}
