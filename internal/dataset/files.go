package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FileSource loads the dataset from flat files on disk.
type FileSource struct {
	cfg domain.DatasetConfig
}

// NewFileSource creates a file-backed dataset source.
func NewFileSource(cfg domain.DatasetConfig) *FileSource {
	return &FileSource{cfg: cfg}
}

// Name identifies the source.
func (s *FileSource) Name() string {
	return "files:" + s.cfg.Dir
}

func (s *FileSource) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.cfg.Dir, name)
}

// Load reads every table. Only the transaction file is mandatory.
func (s *FileSource) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		Labels:   &domain.LabelTable{},
		Users:    []domain.User{},
		MCCCodes: map[string]string{},
		Modified: make(map[string]time.Time),
	}

	err := s.loadTable(ctx, snap, domain.TableTransactions, s.cfg.TransactionsFile, true, func(r io.Reader) (int, error) {
		txs, err := ReadTransactions(r)
		snap.Transactions = txs
		return len(txs), err
	})
	if err != nil {
		return nil, err
	}

	optional := []struct {
		table string
		file  string
		read  func(io.Reader) (int, error)
	}{
		{domain.TableLabels, s.cfg.LabelsFile, func(r io.Reader) (int, error) {
			labels, err := ReadLabels(r)
			if labels != nil {
				snap.Labels = labels
			}
			return snap.Labels.Len(), err
		}},
		{domain.TableUsers, s.cfg.UsersFile, func(r io.Reader) (int, error) {
			users, err := ReadUsers(r)
			if users != nil {
				snap.Users = users
			}
			return len(snap.Users), err
		}},
		{domain.TableMCC, s.cfg.MCCFile, func(r io.Reader) (int, error) {
			codes, err := ReadMCCCodes(r)
			if codes != nil {
				snap.MCCCodes = codes
			}
			return len(snap.MCCCodes), err
		}},
	}
	for _, t := range optional {
		if err := s.loadTable(ctx, snap, t.table, t.file, false, t.read); err != nil {
			return nil, err
		}
	}

	return snap, nil
}

func (s *FileSource) loadTable(ctx context.Context, snap *domain.Snapshot, table, file string, required bool, read func(io.Reader) (int, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if file == "" {
		if required {
			return fmt.Errorf("%s: no file configured", table)
		}
		snap.Missing = append(snap.Missing, table)
		return nil
	}

	path := s.path(file)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			slog.Warn("dataset file missing", "table", table, "path", path)
			snap.Missing = append(snap.Missing, table)
			return nil
		}
		return fmt.Errorf("%s: %w", table, err)
	}
	defer f.Close()

	start := time.Now()
	rows, err := read(f)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", table, path, err)
	}

	if info, err := f.Stat(); err == nil {
		snap.Modified[table] = info.ModTime().UTC()
	}

	slog.Info("dataset table loaded",
		"table", table,
		"path", path,
		"rows", rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
