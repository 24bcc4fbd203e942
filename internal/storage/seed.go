package storage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"kakeibo/internal/core"
)

//go:embed seed.yaml
var seedYAML []byte

type SeedData struct {
	Categories []struct {
		Major  string   `yaml:"major"`
		Minors []string `yaml:"minors"`
	} `yaml:"categories"`
	PaymentMethods []string `yaml:"payment_methods"`
	IncomeSources  []string `yaml:"income_sources"`
}

// LoadSeedData parses the embedded seed file.
func LoadSeedData() (SeedData, error) {
	var d SeedData
	if err := yaml.Unmarshal(seedYAML, &d); err != nil {
		return d, fmt.Errorf("parse seed data: %w", err)
	}
	return d, nil
}

// categories flattens the seed tree into rows. A major with no minors
// yields a single row without refinement; sort_order counts from 0.
func (d SeedData) categories(now time.Time) []core.Category {
	var out []core.Category
	add := func(major, minor string) {
		out = append(out, core.Category{
			ID: core.NewID(), MajorName: major, MinorName: minor,
			SortOrder: len(out), IsActive: true, CreatedAt: now, UpdatedAt: now,
		})
	}
	for _, c := range d.Categories {
		if len(c.Minors) == 0 {
			add(c.Major, "")
			continue
		}
		for _, minor := range c.Minors {
			add(c.Major, minor)
		}
	}
	return out
}

func (d SeedData) paymentMethods(now time.Time) []core.PaymentMethod {
	out := make([]core.PaymentMethod, 0, len(d.PaymentMethods))
	for i, name := range d.PaymentMethods {
		out = append(out, core.PaymentMethod{
			ID: core.NewID(), Name: name, SortOrder: i, IsActive: true, CreatedAt: now, UpdatedAt: now,
		})
	}
	return out
}

func (d SeedData) incomeSources(now time.Time) []core.IncomeSource {
	out := make([]core.IncomeSource, 0, len(d.IncomeSources))
	for i, name := range d.IncomeSources {
		out = append(out, core.IncomeSource{
			ID: core.NewID(), Name: name, SortOrder: i, IsActive: true, CreatedAt: now, UpdatedAt: now,
		})
	}
	return out
}

// Seed fills every empty reference table with the default rows. Tables that
// already hold data are left alone.
func Seed(ctx context.Context, s *Store) error {
	data, err := LoadSeedData()
	if err != nil {
		return err
	}

	return s.Write(ctx, func(w *Writer) error {
		now := w.Now()
		if n, err := seedTable(ctx, w, Categories, data.categories(now)); err != nil {
			return err
		} else if n > 0 {
			slog.InfoContext(ctx, "Seeded categories", "count", n)
		}
		if n, err := seedTable(ctx, w, PaymentMethods, data.paymentMethods(now)); err != nil {
			return err
		} else if n > 0 {
			slog.InfoContext(ctx, "Seeded payment methods", "count", n)
		}
		if n, err := seedTable(ctx, w, IncomeSources, data.incomeSources(now)); err != nil {
			return err
		} else if n > 0 {
			slog.InfoContext(ctx, "Seeded income sources", "count", n)
		}
		return nil
	})
}

func seedTable[T any](ctx context.Context, w *Writer, t Table[T], rows []T) (int, error) {
	n, err := Count(ctx, w, t, nil)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	if err := BulkInsert(ctx, w, t, rows); err != nil {
		return 0, fmt.Errorf("seed %s: %w", t.Name, err)
	}
	return len(rows), nil
}
