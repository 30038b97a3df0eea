package service

import (
	"context"
	"fmt"
	"os"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/pkg/logger"
)

// ImportFile loads a YAML seed file and upserts its rows.
func (s *Service) ImportFile(ctx context.Context, path string) ([]catalog.RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := catalog.ParseSeed(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s.Import(ctx, rows)
}

// SeedIfEmpty imports path only when the catalog holds no CMOs and no programs.
func (s *Service) SeedIfEmpty(ctx context.Context, path string) (bool, error) {
	c, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if len(c.Documents) > 0 || len(c.Programs) > 0 {
		return false, nil
	}
	rejected, err := s.ImportFile(ctx, path)
	if err != nil {
		return false, err
	}
	for _, r := range rejected {
		logger.Warnf("catalog seed: rejected %v", r)
	}
	return true, nil
}
