package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const transactionsCSV = `id,date,client_id,card_id,amount,use_chip,merchant_id,merchant_city,merchant_state,zip,mcc,errors
7475327,2010-01-01 00:01:00,1556,2972,$-77.00,Swipe Transaction,59935,Beulah,ND,58523.0,5499,
7475328,2010-01-01 00:02:00,561,4575,"$14,057.60",Swipe Transaction,67570,Bettendorf,IA,52722.0,5311,Bad PIN
7475329,not-a-date,1129,102,$80.00,Online Transaction,27092,ONLINE,,,4829,
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$-77.00", "-77"},
		{"$14,057.60", "14057.6"},
		{"80", "80"},
		{" $1,000 ", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if err != nil {
				t.Fatalf("ParseAmount failed: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.String())
			}
		})
	}

	for _, bad := range []string{"", "$", "abc"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestReadTransactions(t *testing.T) {
	txs, err := ReadTransactions(strings.NewReader(transactionsCSV))
	if err != nil {
		t.Fatalf("ReadTransactions failed: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}

	first := txs[0]
	if first.ID != 7475327 || first.ClientID != 1556 || first.CardID != 2972 {
		t.Errorf("unexpected identifiers: %+v", first)
	}
	if first.AmountValue() != -77 {
		t.Errorf("expected amount -77, got %v", first.AmountValue())
	}
	if first.Errors != nil || first.Flagged() {
		t.Error("empty errors column should be nil and not flagged")
	}
	if first.Zip == nil || *first.Zip != "58523.0" {
		t.Errorf("expected zip 58523.0, got %v", first.Zip)
	}
	if first.MCC == nil || *first.MCC != 5499 {
		t.Errorf("expected mcc 5499, got %v", first.MCC)
	}
	if first.Date == nil || first.Date.Format(domain.DateLayout) != "2010-01-01 00:01:00" {
		t.Errorf("unexpected date: %v", first.Date)
	}

	if !txs[1].Flagged() {
		t.Error("row with error annotation should be flagged")
	}
	if txs[1].AmountValue() != 14057.6 {
		t.Errorf("expected amount 14057.6, got %v", txs[1].AmountValue())
	}

	if txs[2].Date != nil {
		t.Error("unparseable date should be nil")
	}
	if txs[2].MerchantState != nil || txs[2].Zip != nil {
		t.Error("empty merchant state and zip should be nil")
	}

	t.Run("WhitespaceErrorAnnotation", func(t *testing.T) {
		data := "id,client_id,card_id,amount,errors\n1,2,3,$1.00,\" \"\n2,2,3,$1.00,NaN\n"
		txs, err := ReadTransactions(strings.NewReader(data))
		if err != nil {
			t.Fatalf("ReadTransactions failed: %v", err)
		}
		if !txs[0].Flagged() || *txs[0].Errors != " " {
			t.Errorf("whitespace annotation should be kept and flagged, got %q", derefString(txs[0].Errors))
		}
		if txs[1].Flagged() {
			t.Error("NaN annotation should not be flagged")
		}
	})

	t.Run("MissingRequiredColumn", func(t *testing.T) {
		_, err := ReadTransactions(strings.NewReader("id,client_id,card_id\n1,2,3\n"))
		if err == nil {
			t.Error("expected error for missing amount column")
		}
	})

	t.Run("MalformedAmount", func(t *testing.T) {
		_, err := ReadTransactions(strings.NewReader("id,client_id,card_id,amount\n1,2,3,$x\n"))
		if err == nil || !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line-numbered error, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		txs, err := ReadTransactions(strings.NewReader(""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("expected no rows, got %d", len(txs))
		}
	})
}

func TestReadLabels(t *testing.T) {
	t.Run("IndexKeyed", func(t *testing.T) {
		table, err := ReadLabels(strings.NewReader(`{"target": {"10649266": "No", "23410063": "Yes"}}`))
		if err != nil {
			t.Fatalf("ReadLabels failed: %v", err)
		}
		if table.IDColumn != "" {
			t.Errorf("expected no identifier column, got %q", table.IDColumn)
		}
		if table.LabelColumn != "target" {
			t.Errorf("expected label column target, got %q", table.LabelColumn)
		}
		if table.Len() != 2 {
			t.Fatalf("expected 2 rows, got %d", table.Len())
		}
		if table.Rows[0].Index != "10649266" || table.Rows[1].Label != "Yes" {
			t.Errorf("document order not preserved: %+v", table.Rows)
		}
	})

	t.Run("ColumnFrameWithIdentifier", func(t *testing.T) {
		doc := `{"transaction_id": {"0": 11, "1": 12}, "is_fraud": {"0": "Yes", "1": "No"}}`
		table, err := ReadLabels(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("ReadLabels failed: %v", err)
		}
		if table.IDColumn != "transaction_id" {
			t.Fatalf("expected transaction_id column, got %q", table.IDColumn)
		}
		if table.Rows[0].ID == nil || table.Rows[0].Label != "Yes" {
			t.Errorf("unexpected first row: %+v", table.Rows[0])
		}
	})

	t.Run("Records", func(t *testing.T) {
		doc := `[{"transaction_id": 1, "is_fraud": "Yes"}, {"transaction_id": "2", "is_fraud": false}]`
		table, err := ReadLabels(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("ReadLabels failed: %v", err)
		}
		if table.IDColumn != "transaction_id" || table.LabelColumn != "is_fraud" {
			t.Errorf("unexpected columns: %q %q", table.IDColumn, table.LabelColumn)
		}
		if table.Rows[1].Label != domain.LabelNegative {
			t.Errorf("boolean false should map to No, got %q", table.Rows[1].Label)
		}
	})

	t.Run("NoLabelColumn", func(t *testing.T) {
		if _, err := ReadLabels(strings.NewReader(`{"other": {"1": "x"}}`)); err == nil {
			t.Error("expected error without a label column")
		}
	})
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "transactions_data.csv", transactionsCSV)
	writeFile(t, dir, "train_fraud_labels.json", `{"target": {"7475327": "No", "7475328": "Yes"}}`)
	writeFile(t, dir, "mcc_codes.json", `{"5499": "Miscellaneous Food Stores"}`)

	cfg := domain.DefaultConfig().Dataset
	cfg.Dir = dir

	snap, err := NewFileSource(cfg).Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	counts := snap.Counts()
	if counts[domain.TableTransactions] != 3 || counts[domain.TableLabels] != 2 || counts[domain.TableMCC] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if len(snap.Missing) != 1 || snap.Missing[0] != domain.TableUsers {
		t.Errorf("expected users to be missing, got %v", snap.Missing)
	}
	if snap.LastUpdate().IsZero() {
		t.Error("expected modification times to be recorded")
	}

	t.Run("MissingTransactions", func(t *testing.T) {
		cfg := domain.DefaultConfig().Dataset
		cfg.Dir = t.TempDir()
		if _, err := NewFileSource(cfg).Load(context.Background()); err == nil {
			t.Error("expected error when the transaction file is absent")
		}
	})
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context) (*domain.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Snapshot{Transactions: []domain.Transaction{{ID: 1}}}, nil
}

func TestStore(t *testing.T) {
	t.Run("EmptyBeforeLoad", func(t *testing.T) {
		store := NewStore(&countingSource{})
		snap := store.Current()
		if snap == nil {
			t.Fatal("Current must never return nil")
		}
		if len(snap.Transactions) != 0 || snap.Labels.Len() != 0 {
			t.Error("expected empty tables before load")
		}
		if store.Loaded() {
			t.Error("store should not report loaded")
		}
	})

	t.Run("LoadOnce", func(t *testing.T) {
		src := &countingSource{}
		store := NewStore(src)
		for i := 0; i < 3; i++ {
			if err := store.Load(context.Background()); err != nil {
				t.Fatalf("Load failed: %v", err)
			}
		}
		if src.calls != 1 {
			t.Errorf("expected a single source load, got %d", src.calls)
		}

		snap := store.Current()
		if snap.ID == "" {
			t.Error("expected snapshot id to be assigned")
		}
		if snap.Labels == nil || snap.Users == nil {
			t.Error("nil tables should be replaced with empty ones")
		}
	})

	t.Run("LoadError", func(t *testing.T) {
		src := &countingSource{err: errors.New("disk on fire")}
		store := NewStore(src)
		if err := store.Load(context.Background()); err == nil {
			t.Fatal("expected load error")
		}
		if store.Loaded() {
			t.Error("failed load should leave store unloaded")
		}
		if store.Current() == nil {
			t.Error("Current must never return nil")
		}
	})
}

func derefString(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
