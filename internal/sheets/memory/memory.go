// Package memory is an in-process exporter for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"poupanca/internal/core"
	"poupanca/internal/sheets"
)

var _ sheets.TransactionExporter = (*Exporter)(nil)

type Exporter struct {
	mu   sync.Mutex
	rows [][]any
	fail error
}

func New() *Exporter {
	return &Exporter{}
}

// FailWith makes every following Export return err; nil restores success.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

// Export stores the row and returns a synthetic reference.
func (e *Exporter) Export(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return "", e.fail
	}
	e.rows = append(e.rows, sheets.Row(t))
	return fmt.Sprintf("mem:%d", len(e.rows)), nil
}

// Rows returns a copy of everything exported so far.
func (e *Exporter) Rows() [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]any(nil), e.rows...)
}
