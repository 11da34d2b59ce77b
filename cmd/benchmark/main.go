// Benchmark replays a labelled PaySim export against the Kestrel prediction
// endpoint and reports how well a scoring policy separates fraud.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -url http://localhost:8080 -policy full
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
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// labelledRow is a PaySim row reduced to the fields a prediction needs.
type labelledRow struct {
	Type           string
	Amount         float64
	NameOrig       string
	OldBalanceOrg  float64
	NewBalanceOrig float64
	IsFraud        bool
}

func (r labelledRow) request() domain.PredictionRequest {
	return domain.PredictionRequest{
		Amount:         &r.Amount,
		Type:           &r.Type,
		OldBalanceOrg:  &r.OldBalanceOrg,
		NewBalanceOrig: &r.NewBalanceOrig,
	}
}

// tally tracks the confusion matrix across workers.
type tally struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	Processed int64
	Errors    int64
	LatencyUs int64
}

func (t *tally) record(predicted, actual bool) {
	switch {
	case predicted && actual:
		atomic.AddInt64(&t.TruePositives, 1)
	case predicted:
		atomic.AddInt64(&t.FalsePositives, 1)
	case actual:
		atomic.AddInt64(&t.FalseNegatives, 1)
	default:
		atomic.AddInt64(&t.TrueNegatives, 1)
	}
}

func (t *tally) precision() float64 {
	return ratio(t.TruePositives, t.TruePositives+t.FalsePositives)
}

func (t *tally) recall() float64 {
	return ratio(t.TruePositives, t.TruePositives+t.FalseNegatives)
}

func (t *tally) f1() float64 {
	p, r := t.precision(), t.recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (t *tally) accuracy() float64 {
	total := t.TruePositives + t.TrueNegatives + t.FalsePositives + t.FalseNegatives
	return ratio(t.TruePositives+t.TrueNegatives, total)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	policy := flag.String("policy", "", "Scoring policy (full, simple; empty uses the server default)")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only replay fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080] [-policy full]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK - PaySim replay")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Policy:      %s\n", orDefault(*policy, "(server default)"))
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nStart the server first:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	rows, err := readPaySim(file, *limit, *fraudOnly, *sampleRate)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}

	fraud := 0
	for _, row := range rows {
		if row.IsFraud {
			fraud++
		}
	}
	fmt.Printf("Loaded %d transactions (%d fraud, %d legitimate)\n", len(rows), fraud, len(rows)-fraud)

	endpoint := *baseURL + "/api/fraud/predict"
	if *policy != "" {
		endpoint += "?policy=" + url.QueryEscape(*policy)
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	t := replay(rows, endpoint, *workers, *verbose)
	printResults(t, time.Since(start))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/ready")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}
	return nil
}

// readPaySim parses a PaySim CSV. Column names are matched case-insensitively.
func readPaySim(r io.Reader, limit int, fraudOnly bool, sampleRate float64) ([]labelledRow, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"type", "amount", "oldbalanceorg", "newbalanceorig", "isfraud"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	field := func(record []string, name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}
	number := func(record []string, name string) float64 {
		v, _ := strconv.ParseFloat(field(record, name), 64)
		return v
	}

	var rows []labelledRow
	sampled := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		isFraud := field(record, "isfraud") == "1"
		if fraudOnly && !isFraud {
			continue
		}
		if !isFraud && sampleRate < 1.0 {
			sampled++
			if float64(sampled%100)/100.0 >= sampleRate {
				continue
			}
		}

		rows = append(rows, labelledRow{
			Type:           field(record, "type"),
			Amount:         number(record, "amount"),
			NameOrig:       field(record, "nameorig"),
			OldBalanceOrg:  number(record, "oldbalanceorg"),
			NewBalanceOrig: number(record, "newbalanceorig"),
			IsFraud:        isFraud,
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

func replay(rows []labelledRow, endpoint string, numWorkers int, verbose bool) *tally {
	t := &tally{}
	work := make(chan labelledRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				resp, err := predict(client, endpoint, row)
				atomic.AddInt64(&t.LatencyUs, time.Since(start).Microseconds())
				atomic.AddInt64(&t.Processed, 1)

				if err != nil {
					atomic.AddInt64(&t.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", row.NameOrig, err)
					}
					continue
				}
				t.record(resp.IsFraud, row.IsFraud)

				if verbose {
					mark := "ok"
					if resp.IsFraud != row.IsFraud {
						mark = "MISS"
					}
					fmt.Printf("%-4s %-12s | %-8s | %14.2f | labelled %-5v | scored %-5v (%.2f)\n",
						mark, row.NameOrig, row.Type, row.Amount, row.IsFraud, resp.IsFraud, resp.Probability)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)
	wg.Wait()

	return t
}

func predict(client *http.Client, endpoint string, row labelledRow) (*domain.PredictionResponse, error) {
	body, err := json.Marshal(row.request())
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out domain.PredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func printResults(t *tally, duration time.Duration) {
	fmt.Println("\nRESULTS")

	fmt.Printf("\nProcessed:  %d\n", t.Processed)
	fmt.Printf("Errors:     %d\n", t.Errors)

	fmt.Println("\nConfusion matrix")
	fmt.Println("                 scored fraud   scored legit")
	fmt.Printf("  labelled fraud %12d   %12d\n", t.TruePositives, t.FalseNegatives)
	fmt.Printf("  labelled legit %12d   %12d\n", t.FalsePositives, t.TrueNegatives)

	fmt.Printf("\nPrecision:  %.4f\n", t.precision())
	fmt.Printf("Recall:     %.4f\n", t.recall())
	fmt.Printf("F1-Score:   %.4f\n", t.f1())
	fmt.Printf("Accuracy:   %.4f\n", t.accuracy())

	fmt.Printf("\nDuration:   %v\n", duration.Round(time.Millisecond))
	if t.Processed > 0 {
		fmt.Printf("Latency:    %.2f ms avg\n", float64(t.LatencyUs)/float64(t.Processed)/1000)
		fmt.Printf("Throughput: %.2f tx/sec\n", float64(t.Processed)/duration.Seconds())
	}
	fmt.Println()
}
