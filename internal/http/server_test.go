package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poupanca/internal/auth"
	"poupanca/internal/core"
	"poupanca/internal/leaderboard"
	"poupanca/internal/log"
	"poupanca/internal/metrics"
	"poupanca/internal/services"
	"poupanca/internal/storage/memory"
)

type harness struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	auth   *services.AuthService
	tokens *auth.Tokens
	now    time.Time
}

func newHarness(t *testing.T, rateLimit int) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		store: memory.New(),
		now:   time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	m := metrics.New()
	board := leaderboard.NewStoreBoard(h.store)
	h.tokens = auth.NewTokens("test-secret-0123456789", time.Hour)
	xp := services.NewXPService(h.store, h.store, board, m).WithClock(clock)
	h.auth = services.NewAuthService(h.store, xp, h.tokens, board, m)
	txs := services.NewTransactionService(h.store, h.store, nil).WithClock(clock)

	srv, err := NewServer(":0", Deps{
		Auth:               h.auth,
		XP:                 xp,
		Transactions:       txs,
		Categories:         services.NewCategoryService(h.store, h.auth),
		Tokens:             h.tokens,
		Store:              h.store,
		Metrics:            m,
		Logger:             log.New(log.Config{Output: io.Discard}),
		RateLimitPerMinute: rateLimit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	h.srv = srv
	return h
}

func (h *harness) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["error"].(string)
}

func registration(username, email string) map[string]any {
	return map[string]any{
		"username":   username,
		"password":   "s3cret",
		"email":      email,
		"phone":      "11999990000",
		"full_name":  "Ana Souza",
		"birth_date": "1990-05-17",
	}
}

// register creates a user through the API and returns its id and a token.
func (h *harness) register(username string) (int64, string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/register", registration(username, username+"@example.com"), "")
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	u, err := h.store.GetUserByUsername(context.Background(), username)
	require.NoError(h.t, err)
	token, err := h.tokens.Issue(u.ID)
	require.NoError(h.t, err)
	return u.ID, token
}

func (h *harness) setXP(id, xp int64, level int) {
	h.t.Helper()
	_, err := h.store.UpdateXP(context.Background(), id, func(s *core.XPState) error {
		s.XP, s.Level = xp, level
		return nil
	})
	require.NoError(h.t, err)
}

func TestTestAndHealthEndpoints(t *testing.T) {
	h := newHarness(t, 100)

	rec := h.do(http.MethodGet, "/api/test", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgAPIUp, decode[map[string]any](t, rec)["message"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = h.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", ready["status"])
	assert.Equal(t, "ok", ready["checks"].(map[string]any)["store"])

	rec = h.do(http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgResourceNotFound, errorOf(t, rec))
}

func TestRegister(t *testing.T) {
	h := newHarness(t, 100)

	rec := h.do(http.MethodPost, "/api/register", registration("ana", "ana@example.com"), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, msgRegistered, decode[map[string]any](t, rec)["message"])

	u, err := h.store.GetUserByUsername(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.XP)
	assert.Equal(t, 1, u.Level)
	assert.True(t, u.LastGrant.IsEmpty())

	tests := []struct {
		name string
		body any
		want string
	}{
		{"duplicate username", registration("ana", "other@example.com"), msgUsernameTaken},
		{"duplicate email", registration("bia", "ana@example.com"), msgEmailTaken},
		{"missing field", func() map[string]any {
			b := registration("caio", "caio@example.com")
			delete(b, "phone")
			return b
		}(), "Campo phone é obrigatório"},
		{"bad birth date", func() map[string]any {
			b := registration("caio", "caio@example.com")
			b["birth_date"] = "17/05/1990"
			return b
		}(), msgInvalidDate},
		{"bad email", registration("caio", "not-an-email"), msgInvalidEmail},
		{"empty body", "", msgMissingBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/register", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
		})
	}
}

func TestLoginGrantsDailyXPOnce(t *testing.T) {
	h := newHarness(t, 100)
	h.register("ana")

	creds := map[string]any{"username": "ana", "password": "s3cret"}
	rec := h.do(http.MethodPost, "/api/login", creds, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	first := decode[map[string]any](t, rec)
	assert.Equal(t, msgLoginOK, first["message"])
	assert.NotEmpty(t, first["access_token"])
	assert.Equal(t, "ana", first["username"])
	assert.Equal(t, float64(50), first["xp"])
	assert.Equal(t, float64(1), first["level"])
	assert.Equal(t, float64(100), first["next_level_xp"])
	assert.Equal(t, true, first["xp_gained"])
	assert.Equal(t, float64(50), first["xp_amount"])
	assert.Equal(t, "Parabéns! Você ganhou 50 XP pelo login diário!", first["xp_message"])

	rec = h.do(http.MethodPost, "/api/login", creds, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[map[string]any](t, rec)
	assert.Equal(t, float64(50), second["xp"])
	assert.NotContains(t, second, "xp_gained")

	// the token from login works on protected routes
	rec = h.do(http.MethodGet, "/api/user/xp", nil, first["access_token"].(string))
	require.Equal(t, http.StatusOK, rec.Code)
	xp := decode[map[string]any](t, rec)
	assert.Equal(t, "2024-06-12", xp["last_xp_grant"])
}

func TestLoginRejections(t *testing.T) {
	h := newHarness(t, 100)
	h.register("ana")

	rec := h.do(http.MethodPost, "/api/login", map[string]any{"username": "ana", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgBadCredentials, errorOf(t, rec))

	rec = h.do(http.MethodPost, "/api/login", map[string]any{"username": "ghost", "password": "s3cret"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgBadCredentials, errorOf(t, rec))

	rec = h.do(http.MethodPost, "/api/login", map[string]any{"username": "ana"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgLoginRequired, errorOf(t, rec))

	rec = h.do(http.MethodPost, "/api/login", "{", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgLoginRequired, errorOf(t, rec))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t, 100)

	for _, tok := range []string{"", "garbage"} {
		rec := h.do(http.MethodGet, "/api/user/xp", nil, tok)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, msgUnauthorized, errorOf(t, rec))
	}
}

func TestDailyXPAcrossDays(t *testing.T) {
	h := newHarness(t, 100)
	id, token := h.register("ana")
	h.setXP(id, 50, 1)

	rec := h.do(http.MethodPost, "/api/user/daily-xp", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "Parabéns! Você ganhou 50 XP pelo login diário!", got["message"])
	assert.Equal(t, float64(50), got["xp_granted"])
	assert.Equal(t, float64(100), got["total_xp"])
	assert.Equal(t, float64(2), got["level"])
	assert.Equal(t, float64(400), got["next_level_xp"])

	rec = h.do(http.MethodPost, "/api/user/daily-xp", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[map[string]any](t, rec)
	assert.Equal(t, msgDailyAlready, got["message"])
	assert.NotContains(t, got, "xp_granted")
	assert.Equal(t, float64(100), got["total_xp"])

	h.now = h.now.Add(24 * time.Hour)
	rec = h.do(http.MethodPost, "/api/user/daily-xp", nil, token)
	got = decode[map[string]any](t, rec)
	assert.Equal(t, float64(150), got["total_xp"])
}

func TestRecalculateLevel(t *testing.T) {
	h := newHarness(t, 100)
	id, token := h.register("ana")
	h.setXP(id, 1000, 1)

	rec := h.do(http.MethodPost, "/api/user/recalculate-level", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, msgLevelRecalculated, got["message"])
	assert.Equal(t, float64(1000), got["xp"])
	assert.Equal(t, float64(1), got["old_level"])
	assert.Equal(t, float64(4), got["new_level"])
	assert.Equal(t, true, got["level_changed"])
	assert.Equal(t, float64(1600), got["next_level_xp"])

	rec = h.do(http.MethodPost, "/api/user/recalculate-level", nil, token)
	got = decode[map[string]any](t, rec)
	assert.Equal(t, false, got["level_changed"])
}

func TestUserXPNormalizesStaleLevel(t *testing.T) {
	h := newHarness(t, 100)
	id, token := h.register("ana")
	h.setXP(id, 500, 1)

	rec := h.do(http.MethodGet, "/api/user/xp", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, float64(3), got["level"])
	assert.Equal(t, float64(900), got["next_level_xp"])
	assert.Nil(t, got["last_xp_grant"])
}

func TestRankings(t *testing.T) {
	h := newHarness(t, 100)

	var token string
	for i, xp := range []int64{500, 300, 300, 100, 50, 10} {
		id, tok := h.register(fmt.Sprintf("user%d", i))
		h.setXP(id, xp, 1)
		token = tok
	}

	rec := h.do(http.MethodGet, "/api/rankings", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]rankingView](t, rec)
	require.Len(t, got, 6)

	assert.Equal(t, rankingView{Username: "user0", Level: 3, XP: 500, Position: 1}, got[0])
	assert.Equal(t, "user1", got[1].Username, "ties break by id")
	assert.Equal(t, "user2", got[2].Username)
	for _, e := range got[:5] {
		assert.False(t, e.IsCurrentUser)
	}
	assert.Equal(t, rankingView{Username: "user5", Level: 1, XP: 10, Position: 6, IsCurrentUser: true}, got[5])
}

func TestAchievementsAndChallenges(t *testing.T) {
	h := newHarness(t, 100)
	_, token := h.register("ana")

	rec := h.do(http.MethodGet, "/api/user/achievements", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	as := decode[[]map[string]any](t, rec)
	require.Len(t, as, 3)
	assert.Equal(t, "Primeiro Login", as[0]["title"])
	assert.Contains(t, as[0], "achieved_at")
	assert.NotContains(t, as[0], "progress")
	assert.Contains(t, as[1], "progress")

	rec = h.do(http.MethodGet, "/api/challenges", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	cs := decode[[]map[string]any](t, rec)
	require.Len(t, cs, 3)
	for _, c := range cs {
		assert.Equal(t, services.ChallengeInProgress, c["status"])
	}
}

func TestTransactionLifecycle(t *testing.T) {
	h := newHarness(t, 100)
	_, token := h.register("ana")
	_, otherToken := h.register("bia")

	rec := h.do(http.MethodGet, "/api/categories", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[[]categoryView](t, rec)
	require.NotEmpty(t, cats)
	var income, expense categoryView
	for _, c := range cats {
		if c.Type == "income" && income.ID == 0 {
			income = c
		}
		if c.Type == "expense" && expense.ID == 0 {
			expense = c
		}
	}

	rec = h.do(http.MethodPost, "/api/transactions", map[string]any{
		"description": "Salário de junho",
		"amount":      "1234,56",
		"type":        "income",
		"category_id": income.ID,
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		Message     string          `json:"message"`
		Transaction transactionView `json:"transaction"`
	}](t, rec)
	assert.Equal(t, msgTxCreated, created.Message)
	tx := created.Transaction
	assert.Equal(t, 1234.56, tx.Amount)
	assert.Equal(t, "2024-06-12", tx.Date, "date defaults to today")
	require.NotNil(t, tx.Category)
	assert.Equal(t, income.Name, tx.Category.Name)

	rec = h.do(http.MethodPost, "/api/transactions", map[string]any{
		"description": "Mercado",
		"amount":      80.5,
		"type":        "expense",
		"category_id": expense.ID,
		"date":        "2024-06-10",
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	path := fmt.Sprintf("/api/transactions/%d", tx.ID)
	rec = h.do(http.MethodGet, path, nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, path, nil, otherToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgTxNotFound, errorOf(t, rec))

	rec = h.do(http.MethodPut, path, map[string]any{"amount": 2000}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, msgTxUpdated, updated["message"])
	assert.Equal(t, float64(2000), updated["transaction"].(map[string]any)["amount"])

	rec = h.do(http.MethodPut, path, map[string]any{"category_id": expense.ID}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Categoria incompatível com o tipo de transação. A categoria é do tipo expense", errorOf(t, rec))

	rec = h.do(http.MethodGet, "/api/transactions?type=income", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]transactionView](t, rec), 1)

	rec = h.do(http.MethodGet, "/api/transactions", nil, token)
	list := decode[[]transactionView](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-06-12", list[0].Date, "newest first")

	rec = h.do(http.MethodGet, "/api/transactions?start_date=12-06-2024", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Formato de data inválido para start_date. Use YYYY-MM-DD", errorOf(t, rec))

	rec = h.do(http.MethodGet, "/api/summary", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[summaryView](t, rec)
	assert.Equal(t, "all", sum.Period)
	assert.Equal(t, 2000.0, sum.Income)
	assert.Equal(t, 80.5, sum.Expenses)
	assert.Equal(t, 1919.5, sum.Balance)
	assert.Equal(t, 80.5, sum.ExpenseByCategory[expense.Name])

	rec = h.do(http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgTxDeleted, decode[map[string]any](t, rec)["message"])

	rec = h.do(http.MethodGet, path, nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/transactions/abc", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTransactionValidation(t *testing.T) {
	h := newHarness(t, 100)
	_, token := h.register("ana")

	valid := func() map[string]any {
		return map[string]any{"description": "Café", "amount": 5, "type": "expense", "category_id": 5}
	}
	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
		want   string
	}{
		{"missing amount", func(b map[string]any) { delete(b, "amount") }, http.StatusBadRequest, "Campo amount é obrigatório"},
		{"bad type", func(b map[string]any) { b["type"] = "transfer" }, http.StatusBadRequest, msgInvalidType},
		{"unknown category", func(b map[string]any) { b["category_id"] = 999 }, http.StatusNotFound, msgCategoryNotFound},
		{"category type mismatch", func(b map[string]any) { b["category_id"] = 1 }, http.StatusBadRequest, "Categoria incompatível com o tipo de transação. A categoria é do tipo income"},
		{"negative amount", func(b map[string]any) { b["amount"] = -3 }, http.StatusBadRequest, msgInvalidAmount},
		{"bad date", func(b map[string]any) { b["date"] = "ontem" }, http.StatusBadRequest, msgInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)
			rec := h.do(http.MethodPost, "/api/transactions", b, token)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
		})
	}
}

func TestCategoriesAreAdminOnly(t *testing.T) {
	h := newHarness(t, 100)
	_, token := h.register("ana")

	cat := map[string]any{"name": "Pets", "type": "expense", "icon": "🐶"}
	rec := h.do(http.MethodPost, "/api/categories", cat, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msgAdminRequired, errorOf(t, rec))

	created, err := h.auth.EnsureAdmin(context.Background(), services.AdminAccount{
		Username: "admin", Password: "adm1n-pass", Email: "admin@example.com", Phone: "0",
	})
	require.NoError(t, err)
	require.True(t, created)
	admin, err := h.store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	adminToken, err := h.tokens.Issue(admin.ID)
	require.NoError(t, err)

	rec = h.do(http.MethodPost, "/api/categories", cat, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[struct {
		Category categoryView `json:"category"`
	}](t, rec)
	assert.Equal(t, "Pets", body.Category.Name)

	path := fmt.Sprintf("/api/categories/%d", body.Category.ID)
	rec = h.do(http.MethodDelete, path, nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodDelete, path, nil, adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodDelete, path, nil, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgCategoryNotFound, errorOf(t, rec))
}

func TestProfile(t *testing.T) {
	h := newHarness(t, 100)
	_, token := h.register("ana")

	rec := h.do(http.MethodPost, "/api/transactions", map[string]any{
		"description": "Freela", "amount": 300, "type": "income", "category_id": 2,
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/profile", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[map[string]any](t, rec)
	assert.Equal(t, "ana", profile["username"])
	assert.Equal(t, "1990-05-17", profile["birth_date"])
	assert.Equal(t, float64(100), profile["next_level_xp"])
	assert.NotContains(t, profile, "financial_summary")

	rec = h.do(http.MethodGet, "/api/profile?include_transactions=true", nil, token)
	profile = decode[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"income": 300.0, "expenses": 0.0, "balance": 300.0}, profile["financial_summary"])

	rec = h.do(http.MethodPut, "/api/profile", map[string]any{"email": "nope"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidEmail, errorOf(t, rec))

	rec = h.do(http.MethodPut, "/api/profile", map[string]any{"phone": "21988887777"}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "21988887777", decode[map[string]any](t, rec)["user"].(map[string]any)["phone"])

	rec = h.do(http.MethodDelete, "/api/profile", map[string]any{"password": "wrong"}, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgWrongPassword, errorOf(t, rec))

	rec = h.do(http.MethodDelete, "/api/profile", map[string]any{"password": "s3cret"}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/profile", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgUserNotFound, errorOf(t, rec))
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	h := newHarness(t, 2)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/test", nil, "").Code)
	}
	rec := h.do(http.MethodGet, "/api/test", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, msgRateLimited, errorOf(t, rec))

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", nil, "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, 100)
	h.do(http.MethodGet, "/api/test", nil, "")

	rec := h.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `poupanca_http_requests_total{method="GET",route="GET /api/test",status="200"} 1`)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		want   string
	}{
		{fmt.Errorf("get: %w", services.ErrUserNotFound), http.StatusNotFound, msgUserNotFound},
		{fmt.Errorf("row: %w", core.ErrNotFound), http.StatusNotFound, msgResourceNotFound},
		{fmt.Errorf("update xp: %w", core.ErrConflict), http.StatusConflict, msgConflict},
		{fmt.Errorf("add -5 xp: %w", core.ErrInvalidXPAmount), http.StatusPreconditionFailed, msgInvalidXPAmount},
		{services.ErrAdminRequired, http.StatusForbidden, msgAdminRequired},
		{&services.CategoryMismatchError{CategoryType: core.Income}, http.StatusBadRequest, "Categoria incompatível com o tipo de transação. A categoria é do tipo income"},
		{badRequest(msgRequiredField, "x"), http.StatusBadRequest, "Campo x é obrigatório"},
		{errors.New("disk on fire"), http.StatusInternalServerError, msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
		})
	}
}
