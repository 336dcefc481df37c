package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Created (fresh or replayed)
	fail409       uint64 // Conflicts (in progress)
	fail422       uint64 // Business rejections (insufficient funds etc.)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	accounts, err := fetchSeedAccounts()
	if err != nil {
		log.Fatalf("Unable to list seeded accounts: %v", err)
	}
	if len(accounts) < 2 {
		log.Fatal("Benchmark requires at least two seeded accounts (run cmd/seeder first)")
	}
	log.Printf("Using %d seeded accounts", len(accounts))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, accounts)
	}

	wg.Wait()
	printResults(time.Since(start))
}

type accountView struct {
	ID string `json:"id"`
}

func fetchSeedAccounts() ([]accountView, error) {
	resp, err := http.Get(targetURL + "/api/v1/accounts?owner=seed-owner")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var accounts []accountView
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func worker(wg *sync.WaitGroup, start time.Time, accounts []accountView) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		from, to := pickAccounts(accounts)

		// Unique key per logical request; replays are exercised by retried 409s.
		key := fmt.Sprintf("bench-%s-%s-%d", from, to, time.Now().UnixNano())

		payload := map[string]interface{}{
			"kind":                   "transfer",
			"amount":                 "1.00",
			"currency":               "USD",
			"source_account_id":      from,
			"destination_account_id": to,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/movements", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccounts(accounts []accountView) (string, string) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return accounts[0].ID, accounts[1].ID
			}
			return accounts[1].ID, accounts[0].ID
		}
	}

	// Uniform Random
	a := rand.Intn(len(accounts))
	b := rand.Intn(len(accounts))
	for a == b {
		b = rand.Intn(len(accounts))
	}
	return accounts[a].ID, accounts[b].ID
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	conflictRate := float64(f409) / float64(total) * 100

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"success_created":   s201,
		"conflicts":         f409,
		"conflict_rate_pct": conflictRate,
		"rejected_business": f422,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
