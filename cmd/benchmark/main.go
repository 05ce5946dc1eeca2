// Benchmark tool that replays historical claims against a running engine.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/claims.csv -url http://localhost:8080
//
// This tool:
//  1. Reads claims from CSV (optionally with the billing code that was paid)
//  2. Sends each claim to POST /analyze
//  3. Reports the strategy mix, consistency levels and tariff coverage
//  4. Compares resolved billing codes with the expected ones when present
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// ClaimRow is one replayed claim plus the code it was historically paid as.
type ClaimRow struct {
	Claim        domain.Claim
	ExpectedCode string
}

// Metrics tracks benchmark results.
type Metrics struct {
	mu          sync.Mutex
	strategies  map[domain.Strategy]int
	levels      map[domain.Level]int
	flags       map[string]int
	confidences []float64

	TotalProcessed int64
	TotalErrors    int64
	TariffFound    int64
	WithExpected   int64
	CodeMatches    int64

	ProcessingTimeMs int64
}

func newMetrics() *Metrics {
	return &Metrics{
		strategies: make(map[domain.Strategy]int),
		levels:     make(map[domain.Level]int),
		flags:      make(map[string]int),
	}
}

// Record adds one analysis to the totals.
func (m *Metrics) Record(row ClaimRow, a *domain.ClaimAnalysis) {
	if a.Tariff != nil {
		atomic.AddInt64(&m.TariffFound, 1)
	}
	if row.ExpectedCode != "" {
		atomic.AddInt64(&m.WithExpected, 1)
		if a.Code != nil && strings.EqualFold(a.Code.BillingCode, row.ExpectedCode) {
			atomic.AddInt64(&m.CodeMatches, 1)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Code != nil {
		m.strategies[a.Code.Strategy]++
		m.confidences = append(m.confidences, a.Code.Confidence)
	}
	if a.Consistency != nil {
		m.levels[a.Consistency.Level]++
	}
	for _, f := range a.Flags {
		m.flags[f]++
	}
}

func main() {
	csvPath := flag.String("csv", "", "Path to claims CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Engine base URL")
	limit := flag.Int("limit", 10000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/claims.csv [-url http://localhost:8080]")
		fmt.Println("\nColumns: claim_id, service_type, primary_dx, secondary_dx, procedures, drugs,")
		fmt.Println("         region, hospital_class, hospital_type, payer_class, expected_code")
		fmt.Println("List columns are separated by ';'. expected_code is optional.")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("CLAIM ENGINE BENCHMARK - historical claim replay")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Engine URL:  %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: engine not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the engine is running:")
		fmt.Println("  go run ./cmd/claimengine serve")
		os.Exit(1)
	}
	fmt.Println("engine is healthy")

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	rows, skipped, err := readClaimCSV(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("loaded %d claims (%d malformed rows skipped)\n", len(rows), skipped)

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(rows, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

var requiredColumns = []string{"service_type", "primary_dx", "region", "hospital_class", "hospital_type", "payer_class"}

// readClaimCSV parses claims from r. Rows that fail to parse are counted
// and skipped.
func readClaimCSV(r io.Reader, limit int) ([]ClaimRow, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", col)
		}
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []ClaimRow
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		row, err := parseRow(record, field)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, row)

		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, skipped, nil
}

func parseRow(record []string, field func([]string, string) string) (ClaimRow, error) {
	st, err := domain.ParseServiceType(field(record, "service_type"))
	if err != nil {
		return ClaimRow{}, err
	}
	ht, err := domain.ParseHospitalType(field(record, "hospital_type"))
	if err != nil {
		return ClaimRow{}, err
	}
	region, err := strconv.Atoi(field(record, "region"))
	if err != nil {
		return ClaimRow{}, fmt.Errorf("region: %w", err)
	}
	payer, err := strconv.Atoi(field(record, "payer_class"))
	if err != nil {
		return ClaimRow{}, fmt.Errorf("payer_class: %w", err)
	}
	dx := field(record, "primary_dx")
	if dx == "" {
		return ClaimRow{}, errors.New("primary_dx is empty")
	}

	return ClaimRow{
		Claim: domain.Claim{
			ID:                 field(record, "claim_id"),
			ServiceType:        st,
			PrimaryDiagnosis:   dx,
			SecondaryDiagnoses: splitList(field(record, "secondary_dx")),
			Procedures:         splitList(field(record, "procedures")),
			Drugs:              splitList(field(record, "drugs")),
			Facility: domain.Facility{
				Region:        region,
				HospitalClass: field(record, "hospital_class"),
				HospitalType:  ht,
				PayerClass:    domain.PayerClass(payer),
			},
		},
		ExpectedCode: field(record, "expected_code"),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runBenchmark(rows []ClaimRow, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := newMetrics()

	work := make(chan ClaimRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				result, err := analyzeClaim(client, baseURL, row.Claim)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", row.Claim.ID, err)
					}
					continue
				}
				metrics.Record(row, result)

				if verbose {
					status := " "
					if row.ExpectedCode != "" {
						status = "✓"
						if !strings.EqualFold(result.Code.BillingCode, row.ExpectedCode) {
							status = "✗"
						}
					}
					fmt.Printf("%s %-12s | %-7s | %-12s | %-24s %6.2f | %-6s | flags %v\n",
						status,
						row.Claim.ID,
						row.Claim.PrimaryDiagnosis,
						result.Code.BillingCode,
						result.Code.Strategy,
						result.Code.Confidence,
						result.Consistency.Level,
						result.Flags,
					)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeClaim(client *http.Client, baseURL string, claim domain.Claim) (*domain.ClaimAnalysis, error) {
	body, err := json.Marshal(claim)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.ClaimAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Code == nil || result.Consistency == nil {
		return nil, errors.New("incomplete analysis")
	}
	return &result, nil
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	ok := m.TotalProcessed - m.TotalErrors
	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nSTRATEGIES\n")
	strategies := []domain.Strategy{
		domain.StrategyExactFull,
		domain.StrategyMainProcedure,
		domain.StrategyDiagnosisOnly,
		domain.StrategySimilarProcedure,
		domain.StrategyRuleBased,
	}
	for _, s := range strategies {
		n := int64(m.strategies[s])
		fmt.Printf("   %-26s %8d  (%.2f%%)\n", s, n, percent(n, ok))
	}

	fmt.Printf("\nCONSISTENCY\n")
	for _, l := range []domain.Level{domain.LevelHigh, domain.LevelMedium, domain.LevelLow} {
		n := int64(m.levels[l])
		fmt.Printf("   %-26s %8d  (%.2f%%)\n", l, n, percent(n, ok))
	}

	fmt.Printf("\nFLAGS\n")
	names := make([]string, 0, len(m.flags))
	for f := range m.flags {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		n := int64(m.flags[f])
		fmt.Printf("   %-26s %8d  (%.2f%%)\n", f, n, percent(n, ok))
	}

	fmt.Printf("\nCOVERAGE\n")
	fmt.Printf("   Tariff found:     %d / %d (%.2f%%)\n", m.TariffFound, ok, percent(m.TariffFound, ok))
	if m.WithExpected > 0 {
		fmt.Printf("   Code accuracy:    %d / %d (%.2f%%)\n", m.CodeMatches, m.WithExpected, percent(m.CodeMatches, m.WithExpected))
	}
	if len(m.confidences) > 0 {
		sort.Float64s(m.confidences)
		fmt.Printf("   Confidence p50:   %.2f\n", m.confidences[len(m.confidences)/2])
		fmt.Printf("   Confidence p10:   %.2f\n", m.confidences[len(m.confidences)/10])
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f claims/sec\n", cps)
	}

	fmt.Println()
}
