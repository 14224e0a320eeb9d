package http

import (
	"errors"
	"fmt"
	"net/http"

	"poupanca/internal/core"
	"poupanca/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := b.require("username", "password", "email", "phone", "full_name", "birth_date"); err != nil {
		writeServiceError(w, r, err)
		return
	}

	var reg services.Registration
	for key, dst := range map[string]*string{
		"username":  &reg.Username,
		"password":  &reg.Password,
		"email":     &reg.Email,
		"phone":     &reg.Phone,
		"full_name": &reg.FullName,
	} {
		if *dst, err = b.string(key); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if reg.BirthDate, err = b.date("birth_date"); err != nil {
		writeServiceError(w, r, err)
		return
	}

	u, err := s.auth.Register(r.Context(), reg)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": msgRegistered,
		"user_id": u.ID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgLoginRequired)
		return
	}
	username, uerr := b.string("username")
	password, perr := b.string("password")
	if uerr != nil || perr != nil || username == "" || password == "" {
		writeError(w, http.StatusBadRequest, msgLoginRequired)
		return
	}

	res, err := s.auth.Login(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := loginView{
		Message:     msgLoginOK,
		AccessToken: res.Token,
		UserID:      res.User.ID,
		Username:    res.User.Username,
		XP:          res.User.XP,
		Level:       res.User.Level,
		NextLevelXP: res.User.NextLevelXP(),
	}
	if res.Grant.Granted {
		resp.XPGained = true
		resp.XPAmount = res.Grant.Amount
		resp.XPMessage = fmt.Sprintf(msgDailyGranted, res.Grant.Amount)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	u, err := s.auth.Profile(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	view := newUserView(u)

	if r.URL.Query().Get("include_transactions") == "true" {
		sum, err := s.txs.Summary(r.Context(), id, core.PeriodAll)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		view.FinancialSummary = &financialSummaryView{
			Income:   sum.Income.Float(),
			Expenses: sum.Expenses.Float(),
			Balance:  sum.Balance().Float(),
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var c services.ProfileChanges
	for key, dst := range map[string]**string{
		"email":     &c.Email,
		"phone":     &c.Phone,
		"full_name": &c.FullName,
		"password":  &c.Password,
	} {
		if *dst, err = b.optString(key); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	u, err := s.auth.UpdateProfile(r.Context(), userID(r), c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": msgProfileUpdated,
		"user":    newUserView(u),
	})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBody(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := b.require("password"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	password, err := b.string("password")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	err = s.auth.DeleteAccount(r.Context(), userID(r), password)
	if errors.Is(err, core.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, msgWrongPassword)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgAccountDeleted)
}
