// Package sheets defines the outbound port transactions are exported
// through; adapters live in subpackages.
package sheets

import (
	"context"

	"poupanca/internal/core"
)

type (
	// TransactionExporter appends one transaction row to the spreadsheet.
	// The transaction's Category is populated by the caller.
	TransactionExporter interface {
		Export(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}
)

// Header is the column layout of the export sheet.
var Header = []string{"ID", "Data", "Descrição", "Categoria", "Tipo", "Valor", "Usuário"}

// Row renders a transaction in Header order.
func Row(t core.Transaction) []any {
	category := ""
	if t.Category != nil {
		category = t.Category.Name
	}
	return []any{
		t.ID,
		t.Date.String(),
		t.Description,
		category,
		string(t.Type),
		t.Amount.String(),
		t.UserID,
	}
}
