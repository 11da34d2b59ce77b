package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/shopspring/decimal"
)

func strp(s string) *string { return &s }

func date(s string) *time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return &t
}

// testSnapshot holds three labelled transactions and one without a label.
func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		ID: "snap-test",
		Transactions: []domain.Transaction{
			{ID: 1, Date: date("2019-01-01 10:00:00"), ClientID: 10, CardID: 100, Amount: decimal.RequireFromString("1500.00"), UseChip: strp("CHIP"), Errors: strp("E1")},
			{ID: 2, Date: date("2019-01-02 10:00:00"), ClientID: 20, CardID: 200, Amount: decimal.RequireFromString("50.00"), UseChip: strp("SWIPE")},
			{ID: 3, Date: date("2019-01-03 10:00:00"), ClientID: 10, CardID: 101, Amount: decimal.RequireFromString("2500.00"), UseChip: strp("CHIP"), Errors: strp("E2")},
			{ID: 4, ClientID: 30, CardID: 300, Amount: decimal.RequireFromString("-20.00"), UseChip: strp("ONLINE")},
		},
		Labels: &domain.LabelTable{
			LabelColumn: "target",
			Rows: []domain.LabelRow{
				{Index: "1", Label: "Yes"},
				{Index: "2", Label: "No"},
				{Index: "3", Label: "Yes"},
			},
		},
		Users: []domain.User{
			{ID: 10, CurrentAge: 40, Gender: "Female", YearlyIncome: "$50000", CreditScore: 700, Address: "1 Main St"},
			{ID: 20, CurrentAge: 30, Gender: "Male", YearlyIncome: "$40000", CreditScore: 650, Address: "2 Main St"},
		},
		MCCCodes: map[string]string{"5411": "Grocery Stores"},
		Modified: map[string]time.Time{
			domain.TableTransactions: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

type testEnv struct {
	server  *Server
	bus     *bus.ChannelBus
	worker  *worker.Worker
	metrics *metrics.Metrics
}

func createTestServer(t *testing.T, snap *domain.Snapshot) *testEnv {
	t.Helper()

	scorer, err := scoring.NewBuiltinScorer(domain.DefaultConfig().Scoring.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}
	t.Cleanup(func() { scorer.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	w := worker.NewWorker(eventBus)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	m := metrics.New()
	cfg := domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}

	server := NewServer(cfg, Dependencies{
		Store:    dataset.NewStaticStore(snap),
		Scorer:   scorer,
		Cache:    cache.NewLRUCache(100, 0),
		CacheTTL: time.Minute,
		Bus:      eventBus,
		Worker:   w,
		Metrics:  m,
		Version:  "test-v1",
	})
	return &testEnv{server: server, bus: eventBus, worker: w, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestFraudEndpoints(t *testing.T) {
	env := createTestServer(t, testSnapshot())

	t.Run("Summary", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/fraud/summary", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		got := decode[domain.FraudSummary](t, rr)
		want := domain.FraudSummary{TotalFrauds: 2, Flagged: 2, Precision: 1.0, Recall: 1.0}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("SummaryIsCached", func(t *testing.T) {
		first := env.do(t, http.MethodGet, "/api/fraud/summary", "")
		second := env.do(t, http.MethodGet, "/api/fraud/summary", "")
		if second.Header().Get("X-Cache") != "HIT" {
			t.Errorf("expected cache hit, got %q", second.Header().Get("X-Cache"))
		}
		if first.Body.String() != second.Body.String() {
			t.Errorf("cached payload differs: %s vs %s", first.Body.String(), second.Body.String())
		}
	})

	t.Run("ByType", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/fraud/by-type", "")
		got := decode[[]domain.TypeFraudRate](t, rr)

		byType := make(map[string]domain.TypeFraudRate)
		total := 0
		for _, r := range got {
			byType[r.Type] = r
			total += r.TotalTransactions
		}
		if len(byType) != 2 {
			t.Fatalf("expected 2 labelled types, got %+v", got)
		}
		if chip := byType["CHIP"]; chip.FraudRate != 1.0 || chip.TotalTransactions != 2 {
			t.Errorf("unexpected CHIP rate: %+v", chip)
		}
		if swipe := byType["SWIPE"]; swipe.FraudRate != 0 || swipe.TotalTransactions != 1 {
			t.Errorf("unexpected SWIPE rate: %+v", swipe)
		}
		if total != 3 {
			t.Errorf("types must partition the reconciled rows, got %d", total)
		}
	})

	t.Run("Breakdown", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/fraud/by-type/breakdown", "")
		got := decode[[]domain.TypeFraudBreakdown](t, rr)
		if len(got) != 2 || got[0].Type != "CHIP" || got[0].FraudRatePercent != 100 || got[0].FraudulentTransactions != 2 {
			t.Errorf("unexpected breakdown: %+v", got)
		}
	})

	t.Run("Statistics", func(t *testing.T) {
		got := decode[domain.FraudStatistics](t, env.do(t, http.MethodGet, "/api/fraud/statistics", ""))
		if got.TotalTransactions != 3 || got.FraudulentTransactions != 2 || got.TotalFraudAmount != 4000 {
			t.Errorf("unexpected statistics: %+v", got)
		}
	})

	t.Run("Suspicious", func(t *testing.T) {
		got := decode[SuspiciousResponse](t, env.do(t, http.MethodGet, "/api/fraud/suspicious?threshold=2000", ""))
		if got.Total != 1 || len(got.Data) != 1 || got.Data[0].ID != 3 || !got.Data[0].IsFraud {
			t.Errorf("unexpected suspicious list: %+v", got)
		}

		rr := env.do(t, http.MethodGet, "/api/fraud/suspicious?threshold=abc", "")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("DetectByID", func(t *testing.T) {
		got := decode[domain.FraudDetection](t, env.do(t, http.MethodGet, "/api/fraud/transactions/3", ""))
		if got.TransactionID != 3 || !got.IsFraud || got.Amount != 2500 || got.ClientID != 10 {
			t.Errorf("unexpected detection: %+v", got)
		}

		if rr := env.do(t, http.MethodGet, "/api/fraud/transactions/4", ""); rr.Code != http.StatusNotFound {
			t.Errorf("unlabelled transaction: expected 404, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/api/fraud/transactions/x", ""); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("malformed id: expected 422, got %d", rr.Code)
		}
	})
}

func TestEmptySnapshot(t *testing.T) {
	env := createTestServer(t, &domain.Snapshot{ID: "empty-test"})

	got := decode[domain.FraudSummary](t, env.do(t, http.MethodGet, "/api/fraud/summary", ""))
	if got != (domain.FraudSummary{}) {
		t.Errorf("expected zero summary, got %+v", got)
	}

	rr := env.do(t, http.MethodGet, "/api/fraud/by-type", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", rr.Body.String())
	}
}

func TestPredictEndpoints(t *testing.T) {
	env := createTestServer(t, testSnapshot())

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		want     domain.PredictionResponse
	}{
		{
			name:     "DefaultIsSimple",
			path:     "/api/fraud/predict",
			body:     `{"amount":2000,"type":"TRANSFER","oldbalanceOrg":5000,"newbalanceOrig":2000}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: true, Probability: 0.9},
		},
		{
			name:     "FullTransfer",
			path:     "/api/fraud/predict/full",
			body:     `{"amount":2000,"type":"TRANSFER","oldbalanceOrg":5000,"newbalanceOrig":2000}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: true, Probability: 0.8},
		},
		{
			name:     "FullByQuery",
			path:     "/api/fraud/predict?policy=full",
			body:     `{"amount":2000,"type":"TRANSFER","oldbalanceOrg":5000,"newbalanceOrig":2000}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: true, Probability: 0.8},
		},
		{
			name:     "FullPayment",
			path:     "/api/fraud/predict/full",
			body:     `{"amount":100,"type":"PAYMENT","oldbalanceOrg":1000,"newbalanceOrig":900}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: false, Probability: 0.1},
		},
		{
			name:     "FullExactlyHalfIsNotFraud",
			path:     "/api/fraud/predict/full",
			body:     `{"amount":6000,"type":"PAYMENT","oldbalanceOrg":6000,"newbalanceOrig":0}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: false, Probability: 0.5},
		},
		{
			name:     "SimpleTransfer",
			path:     "/api/fraud/predict/simple",
			body:     `{"amount":2000,"type":"TRANSFER","oldbalanceOrg":5000,"newbalanceOrig":2000}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: true, Probability: 0.9},
		},
		{
			name:     "SimpleByQuery",
			path:     "/api/fraud/predict?policy=simple",
			body:     `{"amount":2000,"type":"transfer","oldbalanceOrg":5000,"newbalanceOrig":3000}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: false, Probability: 0},
		},
		{
			name:     "ZeroValuesArePresent",
			path:     "/api/fraud/predict/full",
			body:     `{"amount":0,"type":"","oldbalanceOrg":0,"newbalanceOrig":0}`,
			wantCode: http.StatusOK,
			want:     domain.PredictionResponse{IsFraud: false, Probability: 0.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if got := decode[domain.PredictionResponse](t, rr); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	t.Run("MissingFields", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/fraud/predict", `{"amount":2000,"newbalanceOrig":null}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rr.Code)
		}
		resp := decode[struct {
			Error  string               `json:"error"`
			Fields []scoring.FieldError `json:"fields"`
		}](t, rr)

		var names []string
		for _, f := range resp.Fields {
			names = append(names, f.Field)
		}
		if strings.Join(names, ",") != "type,oldbalanceOrg,newbalanceOrig" {
			t.Errorf("unexpected missing fields: %v", names)
		}
	})

	t.Run("EmptyBody", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/fraud/predict", "")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/fraud/predict", "not-json")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("WrongType", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/fraud/predict", `{"amount":"lots","type":"TRANSFER","oldbalanceOrg":1,"newbalanceOrig":1}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"field":"amount"`) {
			t.Errorf("expected amount to be reported: %s", rr.Body.String())
		}
	})

	t.Run("UnknownPolicy", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/fraud/predict?policy=ml", `{"amount":1,"type":"PAYMENT","oldbalanceOrg":1,"newbalanceOrig":0}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ClientGone", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req := httptest.NewRequest(http.MethodPost, "/api/fraud/predict/full",
			bytes.NewBufferString(`{"amount":20000,"type":"TRANSFER","oldbalanceOrg":0,"newbalanceOrig":0}`)).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d: %s", rr.Code, rr.Body.String())
		}
		if strings.Contains(rr.Body.String(), "probability") {
			t.Errorf("a cancelled request must not carry a verdict: %s", rr.Body.String())
		}
	})
}

func TestPredictPublishesEvents(t *testing.T) {
	env := createTestServer(t, testSnapshot())

	requestIDs := make(chan string, 2)
	sub, _ := env.bus.Subscribe(context.Background(), domain.TopicPredictionAlert, func(ctx context.Context, msg *domain.Message) error {
		var ev worker.PredictionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		requestIDs <- ev.RequestID
		return nil
	})
	defer sub.Unsubscribe()

	env.do(t, http.MethodPost, "/api/fraud/predict/full", `{"amount":100,"type":"PAYMENT","oldbalanceOrg":1000,"newbalanceOrig":900}`)
	env.do(t, http.MethodPost, "/api/fraud/predict/full", `{"amount":20000,"type":"TRANSFER","oldbalanceOrg":0,"newbalanceOrig":0}`)

	select {
	case id := <-requestIDs:
		if id == "" {
			t.Error("expected the request id on the alert")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for alert")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		stats := env.worker.GetStats()
		if stats.Scored[domain.PolicyFull] == 2 && stats.Alerts == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	stats := env.worker.GetStats()
	if stats.Scored[domain.PolicyFull] != 2 || stats.Alerts != 1 {
		t.Errorf("expected 2 scored and 1 alert, got %+v", stats)
	}
	if len(requestIDs) != 0 {
		t.Error("only the fraud verdict may raise an alert")
	}
}

func TestTransactionEndpoints(t *testing.T) {
	env := createTestServer(t, testSnapshot())

	t.Run("List", func(t *testing.T) {
		got := decode[domain.TransactionPage](t, env.do(t, http.MethodGet, "/api/transactions?client_id=10&limit=1", ""))
		if got.Total != 2 || got.Limit != 1 || len(got.Data) != 1 || got.Data[0].ID != 1 {
			t.Errorf("unexpected page: %+v", got)
		}
	})

	t.Run("ListDateFilter", func(t *testing.T) {
		got := decode[domain.TransactionPage](t, env.do(t, http.MethodGet, "/api/transactions?start_date=2019-01-02&end_date=2019-01-02T23:59:59", ""))
		if got.Total != 1 || got.Data[0].ID != 2 {
			t.Errorf("unexpected page: %+v", got)
		}
	})

	t.Run("ListRejectsBadParams", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/transactions?limit=0&offset=-1&min_amount=x", "")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rr.Code)
		}
		resp := decode[struct {
			Fields []scoring.FieldError `json:"fields"`
		}](t, rr)
		if len(resp.Fields) != 3 {
			t.Errorf("expected every bad parameter reported, got %+v", resp.Fields)
		}
	})

	t.Run("Types", func(t *testing.T) {
		got := decode[map[string][]string](t, env.do(t, http.MethodGet, "/api/transactions/types", ""))
		if strings.Join(got["types"], ",") != "CHIP,SWIPE,ONLINE" {
			t.Errorf("unexpected types: %v", got)
		}
	})

	t.Run("Recent", func(t *testing.T) {
		got := decode[domain.TransactionPage](t, env.do(t, http.MethodGet, "/api/transactions/recent?n=2", ""))
		if len(got.Data) != 2 || got.Data[0].ID != 3 || got.Data[1].ID != 2 {
			t.Errorf("unexpected recent: %+v", got)
		}

		if rr := env.do(t, http.MethodGet, "/api/transactions/recent?n=101", ""); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("Search", func(t *testing.T) {
		got := decode[domain.TransactionPage](t, env.do(t, http.MethodPost, "/api/transactions/search", `{"isFraud":true,"amount_range":[2000,3000]}`))
		if got.Total != 1 || got.Data[0].ID != 3 {
			t.Errorf("unexpected search: %+v", got)
		}

		rr := env.do(t, http.MethodPost, "/api/transactions/search", `{"amount_range":[1]}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		got := decode[domain.TransactionView](t, env.do(t, http.MethodGet, "/api/transactions/4", ""))
		if got.ID != 4 || got.Amount != -20 || got.Date != nil {
			t.Errorf("unexpected transaction: %+v", got)
		}

		if rr := env.do(t, http.MethodGet, "/api/transactions/99", ""); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ByCustomer", func(t *testing.T) {
		got := decode[domain.TransactionPage](t, env.do(t, http.MethodGet, "/api/transactions/by-customer/10", ""))
		if got.Total != 2 {
			t.Errorf("expected 2 transactions for client 10, got %+v", got)
		}
	})
}

func TestStatsAndCustomerEndpoints(t *testing.T) {
	env := createTestServer(t, testSnapshot())

	t.Run("Overview", func(t *testing.T) {
		got := decode[domain.Overview](t, env.do(t, http.MethodGet, "/api/stats/overview", ""))
		if got.TotalTransactions != 4 || got.MostCommonType == nil || *got.MostCommonType != "CHIP" {
			t.Errorf("unexpected overview: %+v", got)
		}
	})

	t.Run("Daily", func(t *testing.T) {
		got := decode[[]domain.DailyStats](t, env.do(t, http.MethodGet, "/api/stats/daily", ""))
		if len(got) != 3 || got[0].Date != "2019-01-01" {
			t.Errorf("unexpected daily stats: %+v", got)
		}
	})

	t.Run("Client", func(t *testing.T) {
		got := decode[[]domain.User](t, env.do(t, http.MethodGet, "/api/client/10", ""))
		if len(got) != 1 || got[0].CreditScore != 700 {
			t.Errorf("unexpected client: %+v", got)
		}

		rr := env.do(t, http.MethodGet, "/api/client/30", "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
		if msg := decode[map[string]string](t, rr)["error"]; msg != "Client not found or no cards available." {
			t.Errorf("unexpected message %q", msg)
		}
	})

	t.Run("TopCustomers", func(t *testing.T) {
		got := decode[[]domain.TopCustomer](t, env.do(t, http.MethodGet, "/api/customers/top?n=5", ""))
		if len(got) != 2 || got[0].ClientID != 10 || got[0].TotalSpent != 4000 {
			t.Errorf("unexpected top customers: %+v", got)
		}

		if rr := env.do(t, http.MethodGet, "/api/customers/top?n=0", ""); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("ListCustomers", func(t *testing.T) {
		got := decode[domain.CustomerPage](t, env.do(t, http.MethodGet, "/api/customers?page=2&limit=2", ""))
		if got.TotalCustomers != 3 || got.TotalPages != 2 || len(got.Customers) != 1 || got.Customers[0] != 30 {
			t.Errorf("unexpected customer page: %+v", got)
		}

		if rr := env.do(t, http.MethodGet, "/api/customers?limit=201", ""); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})
}

func TestSystemEndpoints(t *testing.T) {
	env := createTestServer(t, testSnapshot())

	t.Run("Health", func(t *testing.T) {
		got := decode[map[string]string](t, env.do(t, http.MethodGet, "/health", ""))
		if got["status"] != "healthy" || got["version"] != "test-v1" {
			t.Errorf("unexpected health: %v", got)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		if rr := env.do(t, http.MethodGet, "/ready", ""); rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("SystemHealth", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/system/health", "")
		got := decode[struct {
			Status        string `json:"status"`
			Uptime        string `json:"uptime"`
			DatasetLoaded bool   `json:"dataset_loaded"`
			Details       struct {
				Counts  map[string]int `json:"counts"`
				Missing []string       `json:"missing_datasets"`
				Events  *worker.Stats  `json:"events"`
				Cache   *cache.Usage   `json:"cache"`
			} `json:"details"`
		}](t, rr)

		if got.Status != "ok" || !got.DatasetLoaded || len(got.Details.Missing) != 0 {
			t.Errorf("unexpected health: %+v", got)
		}
		if got.Details.Counts[domain.TableTransactions] != 4 || got.Details.Counts[domain.TableLabels] != 3 {
			t.Errorf("unexpected counts: %v", got.Details.Counts)
		}
		if got.Details.Events == nil || got.Details.Events.SubscriptionCount != 2 {
			t.Errorf("expected worker stats, got %+v", got.Details.Events)
		}
		if got.Details.Cache == nil || got.Details.Cache.MaxEntries != 100 {
			t.Errorf("expected cache usage, got %+v", got.Details.Cache)
		}
		if !strings.HasPrefix(got.Uptime, "0:00:") {
			t.Errorf("unexpected uptime %q", got.Uptime)
		}
	})

	t.Run("SystemHealthDegraded", func(t *testing.T) {
		snap := testSnapshot()
		snap.Users = nil
		degraded := createTestServer(t, snap)

		got := decode[map[string]any](t, degraded.do(t, http.MethodGet, "/api/system/health", ""))
		if got["status"] != "degraded" || got["dataset_loaded"] != false {
			t.Errorf("expected degraded health, got %v", got)
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		got := decode[struct {
			Version    string `json:"version"`
			LastUpdate string `json:"last_update"`
			Scoring    struct {
				DefaultPolicy string               `json:"default_policy"`
				Policies      []scoring.PolicyInfo `json:"policies"`
			} `json:"scoring"`
		}](t, env.do(t, http.MethodGet, "/api/system/metadata", ""))
		if got.Version != "test-v1" || got.LastUpdate != "2024-05-01T12:00:00Z" {
			t.Errorf("unexpected metadata: %+v", got)
		}
		if got.Scoring.DefaultPolicy != domain.PolicySimple || len(got.Scoring.Policies) != 2 {
			t.Fatalf("unexpected scoring metadata: %+v", got.Scoring)
		}
		full := got.Scoring.Policies[0]
		if full.Name != domain.PolicyFull || len(full.Rules) != 4 || full.Rules[0].ID != "full-amount-tier" {
			t.Errorf("unexpected full policy listing: %+v", full)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		env.do(t, http.MethodPost, "/api/fraud/predict/simple", `{"amount":1,"type":"PAYMENT","oldbalanceOrg":1,"newbalanceOrig":0}`)

		rr := env.do(t, http.MethodGet, "/metrics", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		body := rr.Body.String()
		for _, want := range []string{
			`kestrel_scoring_predictions_total{policy="simple",verdict="legitimate"} 1`,
			`route="/api/fraud/predict/simple"`,
			`kestrel_dataset_rows`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("expected %q in metrics output", want)
			}
		}
	})

	t.Run("RequestID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)
		if rr.Header().Get(RequestIDHeader) != "req-123" {
			t.Errorf("expected request id to be echoed, got %q", rr.Header().Get(RequestIDHeader))
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		rr := env.do(t, http.MethodOptions, "/api/fraud/summary", "")
		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
	})
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00"},
		{90 * time.Minute, "1:30:00"},
		{25 * time.Hour, "1 day, 1:00:00"},
		{50*time.Hour + 5*time.Second, "2 days, 2:00:05"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
