package http

import (
	"net/http"
	"strings"

	"poupanca/internal/core"
	"poupanca/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := s.cats.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]categoryView, 0, len(cs))
	for _, c := range cs {
		out = append(out, newCategoryView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := b.require("name", "type"); err != nil {
		writeServiceError(w, r, err)
		return
	}

	var c core.Category
	var typ string
	for key, dst := range map[string]*string{
		"name":        &c.Name,
		"type":        &typ,
		"description": &c.Description,
		"icon":        &c.Icon,
		"color":       &c.Color,
	} {
		if *dst, err = b.string(key); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	c.Type = core.TransactionType(strings.TrimSpace(typ))

	created, err := s.cats.Create(r.Context(), userID(r), c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  msgCategoryCreated,
		"category": newCategoryView(created),
	})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.cats.Delete(r.Context(), userID(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgCategoryDeleted)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	txs, err := s.txs.List(r.Context(), userID(r), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := b.require("description", "amount", "type", "category_id"); err != nil {
		writeServiceError(w, r, err)
		return
	}

	in, err := newTransactionInput(b)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := s.txs.Create(r.Context(), userID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     msgTxCreated,
		"transaction": newTransactionView(t),
	})
}

func newTransactionInput(b body) (services.NewTransaction, error) {
	var in services.NewTransaction
	var err error
	if in.Description, err = b.string("description"); err != nil {
		return in, err
	}
	if in.Amount, err = b.money("amount"); err != nil {
		return in, err
	}
	typ, err := b.string("type")
	if err != nil {
		return in, err
	}
	in.Type = core.TransactionType(strings.TrimSpace(typ))
	if !in.Type.IsValid() {
		return in, core.ErrInvalidType
	}
	if in.CategoryID, err = b.int64("category_id"); err != nil {
		return in, err
	}
	if b.has("date") {
		if in.Date, err = b.date("date"); err != nil {
			return in, err
		}
	}
	return in, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := s.txs.Get(r.Context(), userID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionView(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	b, err := decodeBody(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := transactionChanges(b)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	t, err := s.txs.Update(r.Context(), userID(r), id, c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     msgTxUpdated,
		"transaction": newTransactionView(t),
	})
}

func transactionChanges(b body) (services.TransactionChanges, error) {
	var c services.TransactionChanges
	var err error
	if c.Description, err = b.optString("description"); err != nil {
		return c, err
	}
	if b.has("amount") {
		m, err := b.money("amount")
		if err != nil {
			return c, err
		}
		c.Amount = &m
	}
	if b.has("type") {
		s, err := b.string("type")
		if err != nil {
			return c, err
		}
		typ := core.TransactionType(strings.TrimSpace(s))
		c.Type = &typ
	}
	if b.has("category_id") {
		id, err := b.int64("category_id")
		if err != nil {
			return c, err
		}
		c.CategoryID = &id
	}
	if b.has("date") {
		d, err := b.date("date")
		if err != nil {
			return c, err
		}
		c.Date = &d
	}
	return c, nil
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.txs.Delete(r.Context(), userID(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgTxDeleted)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = core.PeriodAll
	}
	sum, err := s.txs.Summary(r.Context(), userID(r), period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryView(sum))
}
