// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/reconcile"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Metadata keys of the dataset_meta table.
const (
	metaImportID    = "import_id"
	metaImportedAt  = "imported_at"
	metaIDColumn    = "labels_id_column"
	metaLabelColumn = "labels_label_column"
	metaMissing     = "missing"
	metaModified    = "modified:"
)

// SQLRepository implements domain.DatasetStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.DatasetStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := migrate(context.Background(), db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func openDB(cfg domain.RepositoryConfig) (*sql.DB, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case "sqlite":
		path, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		driverName, dsn = "sqlite", path
	case "postgres":
		driverName, dsn = "postgres", postgresDSN(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidInput, cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// Name identifies the source.
func (r *SQLRepository) Name() string {
	return "sql:" + r.driver
}

// Import replaces every stored table with the contents of snap in one
// database transaction.
func (r *SQLRepository) Import(ctx context.Context, snap *domain.Snapshot) (*domain.ImportStats, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot is required", ErrInvalidInput)
	}

	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "fraud_labels", "users", "mcc_codes", "dataset_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	stats := &domain.ImportStats{}
	if stats.Transactions, err = r.insertTransactions(ctx, tx, snap.Transactions); err != nil {
		return nil, err
	}
	if stats.Labels, err = r.insertLabels(ctx, tx, snap.Labels); err != nil {
		return nil, err
	}
	if stats.Users, err = r.insertUsers(ctx, tx, snap.Users); err != nil {
		return nil, err
	}
	if stats.MCCCodes, err = r.insertMCCCodes(ctx, tx, snap.MCCCodes); err != nil {
		return nil, err
	}
	if err := r.insertMeta(ctx, tx, snap); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	stats.Duration = time.Since(start)

	slog.Info("dataset imported",
		"driver", r.driver,
		"transactions", stats.Transactions,
		"labels", stats.Labels,
		"users", stats.Users,
		"mcc_codes", stats.MCCCodes,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

func (r *SQLRepository) insertTransactions(ctx context.Context, tx *sql.Tx, rows []domain.Transaction) (int, error) {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO transactions (
			id, seq, tx_date, client_id, card_id, amount, use_chip,
			merchant_id, merchant_city, merchant_state, zip, mcc, errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i := range rows {
		t := &rows[i]
		var date *string
		if t.Date != nil {
			s := t.Date.Format(domain.DateLayout)
			date = &s
		}
		if _, err := stmt.ExecContext(ctx,
			t.ID, i, date, t.ClientID, t.CardID, t.Amount.String(), t.UseChip,
			t.MerchantID, t.MerchantCity, t.MerchantState, t.Zip, t.MCC, t.Errors,
		); err != nil {
			return i, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
	}
	return len(rows), nil
}

// insertLabels stores identifiers in canonical form, so loading them back
// reconciles exactly as the source did.
func (r *SQLRepository) insertLabels(ctx context.Context, tx *sql.Tx, labels *domain.LabelTable) (int, error) {
	if labels == nil {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO fraud_labels (seq, row_index, raw_id, label) VALUES (?, ?, ?, ?)
	`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, row := range labels.Rows {
		var rawID *string
		if row.ID != nil {
			key := reconcile.CanonicalKey(row.ID)
			rawID = &key
		}
		if _, err := stmt.ExecContext(ctx, i, row.Index, rawID, row.Label); err != nil {
			return i, fmt.Errorf("label %s: %w", row.Index, err)
		}
	}
	return len(labels.Rows), nil
}

func (r *SQLRepository) insertUsers(ctx context.Context, tx *sql.Tx, users []domain.User) (int, error) {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO users (
			seq, id, current_age, retirement_age, birth_year, birth_month, gender, address,
			latitude, longitude, per_capita_income, yearly_income, total_debt,
			credit_score, num_credit_cards
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i := range users {
		u := &users[i]
		if _, err := stmt.ExecContext(ctx,
			i, u.ID, u.CurrentAge, u.RetirementAge, u.BirthYear, u.BirthMonth, u.Gender, u.Address,
			u.Latitude, u.Longitude, u.PerCapitaIncome, u.YearlyIncome, u.TotalDebt,
			u.CreditScore, u.NumCreditCards,
		); err != nil {
			return i, fmt.Errorf("user %d: %w", u.ID, err)
		}
	}
	return len(users), nil
}

func (r *SQLRepository) insertMCCCodes(ctx context.Context, tx *sql.Tx, codes map[string]string) (int, error) {
	stmt, err := tx.PrepareContext(ctx, r.rebind(`INSERT INTO mcc_codes (code, description) VALUES (?, ?)`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for code, desc := range codes {
		if _, err := stmt.ExecContext(ctx, code, desc); err != nil {
			return 0, fmt.Errorf("mcc %s: %w", code, err)
		}
	}
	return len(codes), nil
}

func (r *SQLRepository) insertMeta(ctx context.Context, tx *sql.Tx, snap *domain.Snapshot) error {
	meta := map[string]string{
		metaImportID:   uuid.New().String(),
		metaImportedAt: time.Now().UTC().Format(time.RFC3339Nano),
		metaMissing:    strings.Join(snap.Missing, ","),
	}
	if snap.Labels != nil {
		meta[metaIDColumn] = snap.Labels.IDColumn
		meta[metaLabelColumn] = snap.Labels.LabelColumn
	}
	for table, t := range snap.Modified {
		meta[metaModified+table] = t.UTC().Format(time.RFC3339Nano)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`INSERT INTO dataset_meta (meta_key, meta_value) VALUES (?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, v := range meta {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("meta %s: %w", k, err)
		}
	}
	return nil
}

// Load reads the imported tables back as a snapshot. The snapshot id is the
// import id, so every replica reading the same import shares cache keys.
// ErrNotFound means nothing has been imported yet.
func (r *SQLRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	meta, err := r.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if meta[metaImportID] == "" {
		return nil, fmt.Errorf("%w: no dataset imported", ErrNotFound)
	}

	snap := &domain.Snapshot{
		ID:       meta[metaImportID],
		Modified: make(map[string]time.Time),
		Labels: &domain.LabelTable{
			IDColumn:    meta[metaIDColumn],
			LabelColumn: meta[metaLabelColumn],
		},
	}
	if m := meta[metaMissing]; m != "" {
		snap.Missing = strings.Split(m, ",")
	}
	for k, v := range meta {
		table, ok := strings.CutPrefix(k, metaModified)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.Modified[table] = t
		}
	}

	if snap.Transactions, err = r.loadTransactions(ctx); err != nil {
		return nil, err
	}
	if snap.Labels.Rows, err = r.loadLabels(ctx); err != nil {
		return nil, err
	}
	if snap.Users, err = r.loadUsers(ctx); err != nil {
		return nil, err
	}
	if snap.MCCCodes, err = r.loadMCCCodes(ctx); err != nil {
		return nil, err
	}

	return snap, nil
}

func (r *SQLRepository) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT meta_key, meta_value FROM dataset_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (r *SQLRepository) loadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tx_date, client_id, card_id, amount, use_chip,
			   merchant_id, merchant_city, merchant_state, zip, mcc, errors
		FROM transactions
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		var date sql.NullString
		var amount string
		var merchantID sql.NullInt64
		var mcc sql.NullInt64
		var useChip, city, state, zip, errs sql.NullString

		if err := rows.Scan(
			&t.ID, &date, &t.ClientID, &t.CardID, &amount, &useChip,
			&merchantID, &city, &state, &zip, &mcc, &errs,
		); err != nil {
			return nil, err
		}

		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %d: bad amount %q: %w", t.ID, amount, err)
		}
		if date.Valid {
			if d, err := time.Parse(domain.DateLayout, date.String); err == nil {
				t.Date = &d
			}
		}
		if merchantID.Valid {
			t.MerchantID = &merchantID.Int64
		}
		if mcc.Valid {
			v := int(mcc.Int64)
			t.MCC = &v
		}
		t.UseChip = nullString(useChip)
		t.MerchantCity = nullString(city)
		t.MerchantState = nullString(state)
		t.Zip = nullString(zip)
		t.Errors = nullString(errs)

		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *SQLRepository) loadLabels(ctx context.Context) ([]domain.LabelRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT row_index, raw_id, label FROM fraud_labels ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LabelRow
	for rows.Next() {
		var row domain.LabelRow
		var rawID sql.NullString
		if err := rows.Scan(&row.Index, &rawID, &row.Label); err != nil {
			return nil, err
		}
		if rawID.Valid {
			row.ID = rawID.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLRepository) loadUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, current_age, retirement_age, birth_year, birth_month, gender, address,
			   latitude, longitude, per_capita_income, yearly_income, total_debt,
			   credit_score, num_credit_cards
		FROM users
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.CurrentAge, &u.RetirementAge, &u.BirthYear, &u.BirthMonth, &u.Gender, &u.Address,
			&u.Latitude, &u.Longitude, &u.PerCapitaIncome, &u.YearlyIncome, &u.TotalDebt,
			&u.CreditScore, &u.NumCreditCards,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLRepository) loadMCCCodes(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, description FROM mcc_codes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make(map[string]string)
	for rows.Next() {
		var code, desc string
		if err := rows.Scan(&code, &desc); err != nil {
			return nil, err
		}
		codes[code] = desc
	}
	return codes, rows.Err()
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
