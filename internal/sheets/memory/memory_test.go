package memory

import (
	"context"
	"errors"
	"testing"

	"poupanca/internal/core"
)

func sample() core.Transaction {
	return core.Transaction{
		ID:          4,
		UserID:      2,
		CategoryID:  5,
		Category:    &core.Category{ID: 5, Name: "Alimentação", Type: core.Expense},
		Description: "Mercado",
		Amount:      core.Money{Cents: 12345},
		Type:        core.Expense,
		Date:        core.NewDate(2024, 3, 9),
	}
}

func TestExporterAppendsRows(t *testing.T) {
	e := New()
	ref, err := e.Export(context.Background(), sample())
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}
	rows := e.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0][1] != "2024-03-09" || rows[0][3] != "Alimentação" || rows[0][5] != "123.45" {
		t.Fatalf("unexpected row: %v", rows[0])
	}
}

func TestExporterRejectsInvalid(t *testing.T) {
	tx := sample()
	tx.Amount = core.Money{}
	if _, err := New().Export(context.Background(), tx); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestExporterFailWith(t *testing.T) {
	e := New()
	boom := errors.New("boom")
	e.FailWith(boom)
	if _, err := e.Export(context.Background(), sample()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	e.FailWith(nil)
	if _, err := e.Export(context.Background(), sample()); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}
