package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"poupanca/internal/auth"
	"poupanca/internal/core"
)

const maxBodyBytes = 1 << 20

// body is a decoded JSON object keyed by field name, so handlers can tell
// a missing field from a zero value.
type body map[string]json.RawMessage

// decodeBody reads a JSON object. An empty or malformed body is a 400.
func decodeBody(w http.ResponseWriter, r *http.Request) (body, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var b body
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil || b == nil {
		return nil, badRequest(msgMissingBody)
	}
	return b, nil
}

// has reports whether key is present and not null.
func (b body) has(key string) bool {
	raw, ok := b[key]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// require fails on the first missing field, in argument order.
func (b body) require(keys ...string) error {
	for _, k := range keys {
		if !b.has(k) {
			return badRequest(msgRequiredField, k)
		}
	}
	return nil
}

func (b body) string(key string) (string, error) {
	if !b.has(key) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(b[key], &s); err != nil {
		return "", badRequest(msgInvalidField, key)
	}
	return s, nil
}

// optString returns nil when key is absent.
func (b body) optString(key string) (*string, error) {
	if !b.has(key) {
		return nil, nil
	}
	s, err := b.string(key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// int64 accepts a JSON number or a numeric string.
func (b body) int64(key string) (int64, error) {
	raw := bytes.Trim(bytes.TrimSpace(b[key]), `"`)
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, badRequest(msgInvalidField, key)
	}
	return n, nil
}

// money accepts a JSON number or a decimal string, with dot or comma.
func (b body) money(key string) (core.Money, error) {
	raw := bytes.TrimSpace(b[key])
	var d decimal.Decimal
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return core.Money{}, badRequest(msgInvalidAmount)
		}
		cents, err := core.ParseDecimalToCents(s)
		if err != nil {
			return core.Money{}, badRequest(msgInvalidAmount)
		}
		return core.Money{Cents: cents}, nil
	}
	if err := d.UnmarshalJSON(raw); err != nil {
		return core.Money{}, badRequest(msgInvalidAmount)
	}
	cents, err := core.DecimalToCents(d)
	if err != nil {
		return core.Money{}, badRequest(msgInvalidAmount)
	}
	return core.Money{Cents: cents}, nil
}

func (b body) date(key string) (core.Date, error) {
	s, err := b.string(key)
	if err != nil {
		return core.Date{}, badRequest(msgInvalidDate)
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, badRequest(msgInvalidDate)
	}
	return d, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(q url.Values, key string) (core.Date, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, badRequest(msgInvalidDateFor, key)
	}
	return d, nil
}

// transactionFilter reads the listing filters. A malformed limit falls
// back to the default, as the old API did.
func transactionFilter(q url.Values) (core.TransactionFilter, error) {
	f := core.TransactionFilter{
		Type:  core.TransactionType(strings.TrimSpace(q.Get("type"))),
		Limit: core.DefaultTransactionLimit,
	}
	if s := strings.TrimSpace(q.Get("category_id")); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return f, badRequest(msgInvalidField, "category_id")
		}
		f.CategoryID = id
	}
	var err error
	if f.Start, err = queryDate(q, "start_date"); err != nil {
		return f, err
	}
	if f.End, err = queryDate(q, "end_date"); err != nil {
		return f, err
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	return f, nil
}

// pathID reads the {id} wildcard. Non-numeric ids are a 404, the route
// simply does not exist for them.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &requestError{status: http.StatusNotFound, message: msgResourceNotFound}
	}
	return id, nil
}

// userID is the authenticated caller; auth.Require guarantees it is set.
func userID(r *http.Request) int64 {
	id, _ := auth.UserID(r.Context())
	return id
}
