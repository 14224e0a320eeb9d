package storage

import "poupanca/internal/core"

// DefaultCategories is the category set every new database starts with. The
// SQL migrations insert the same rows.
func DefaultCategories() []core.Category {
	return []core.Category{
		{Name: "Salário", Description: "Salário e proventos", Type: core.Income, Icon: "💼", Color: "#4CAF50"},
		{Name: "Freelance", Description: "Trabalhos extras", Type: core.Income, Icon: "💻", Color: "#8BC34A"},
		{Name: "Investimentos", Description: "Rendimentos de investimentos", Type: core.Income, Icon: "📈", Color: "#009688"},
		{Name: "Outras Receitas", Description: "Outras entradas", Type: core.Income, Icon: "💰", Color: "#CDDC39"},
		{Name: "Alimentação", Description: "Mercado e refeições", Type: core.Expense, Icon: "🍔", Color: "#F44336"},
		{Name: "Transporte", Description: "Combustível e transporte público", Type: core.Expense, Icon: "🚌", Color: "#FF9800"},
		{Name: "Moradia", Description: "Aluguel e contas da casa", Type: core.Expense, Icon: "🏠", Color: "#795548"},
		{Name: "Lazer", Description: "Entretenimento", Type: core.Expense, Icon: "🎮", Color: "#9C27B0"},
		{Name: "Saúde", Description: "Farmácia e consultas", Type: core.Expense, Icon: "💊", Color: "#E91E63"},
		{Name: "Educação", Description: "Cursos e materiais", Type: core.Expense, Icon: "📚", Color: "#3F51B5"},
		{Name: "Outras Despesas", Description: "Outros gastos", Type: core.Expense, Icon: "🧾", Color: "#607D8B"},
	}
}
