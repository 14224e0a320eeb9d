package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"poupanca/internal/core"
	"poupanca/internal/log"
	"poupanca/internal/services"
)

// Response messages.
const (
	msgAPIUp              = "API está funcionando!"
	msgRegistered         = "Usuário registrado com sucesso"
	msgLoginOK            = "Login bem-sucedido"
	msgLoginRequired      = "Nome de usuário e senha são obrigatórios"
	msgBadCredentials     = "Nome de usuário ou senha inválidos"
	msgWrongPassword      = "Senha incorreta"
	msgProfileUpdated     = "Perfil atualizado com sucesso"
	msgAccountDeleted     = "Conta excluída com sucesso"
	msgDailyGranted       = "Parabéns! Você ganhou %d XP pelo login diário!"
	msgDailyAlready       = "Você já recebeu XP hoje. Volte amanhã!"
	msgLevelRecalculated  = "Nível recalculado com sucesso!"
	msgTxCreated          = "Transação criada com sucesso"
	msgTxUpdated          = "Transação atualizada com sucesso"
	msgTxDeleted          = "Transação excluída com sucesso"
	msgCategoryCreated    = "Categoria criada com sucesso"
	msgCategoryDeleted    = "Categoria excluída com sucesso"
	msgUserNotFound       = "Usuário não encontrado"
	msgTxNotFound         = "Transação não encontrada"
	msgCategoryNotFound   = "Categoria não encontrada"
	msgResourceNotFound   = "Recurso não encontrado"
	msgUsernameTaken      = "Nome de usuário já existe"
	msgEmailTaken         = "Email já está em uso"
	msgAdminRequired      = "Privilégios de administrador requeridos"
	msgUnauthorized       = "Token de acesso ausente ou inválido"
	msgRateLimited        = "Muitas requisições. Tente novamente mais tarde."
	msgMissingBody        = "Dados da requisição não fornecidos"
	msgRequiredField      = "Campo %s é obrigatório"
	msgInvalidField       = "Campo %s inválido"
	msgInvalidDate        = "Formato de data inválido. Use YYYY-MM-DD"
	msgInvalidDateFor     = "Formato de data inválido para %s. Use YYYY-MM-DD"
	msgInvalidType        = `Tipo de transação deve ser "income" ou "expense"`
	msgCategoryMismatch   = "Categoria incompatível com o tipo de transação. A categoria é do tipo %s"
	msgCategoryInUse      = "Categoria em uso por transações"
	msgConflict           = "Conflito de atualização. Tente novamente."
	msgInvalidXPAmount    = "Quantidade de XP deve ser positiva"
	msgInternal           = "Erro interno do servidor"
	msgInvalidAmount      = "Valor inválido. Use um número positivo"
	msgDescriptionTooLong = "Descrição muito longa (máximo 200 caracteres)"
	msgUsernameTooLong    = "Nome de usuário muito longo (máximo 50 caracteres)"
	msgCategoryNameLong   = "Nome da categoria muito longo (máximo 50 caracteres)"
	msgInvalidEmail       = "Email inválido"
)

// requestError is a client mistake caught while reading the request.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// errorStatus maps service and domain errors onto responses. The first
// entry matching with errors.Is wins, so specific errors precede the
// sentinels they wrap.
var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{services.ErrUserNotFound, http.StatusNotFound, msgUserNotFound},
	{services.ErrTxNotFound, http.StatusNotFound, msgTxNotFound},
	{services.ErrCategoryNotFound, http.StatusNotFound, msgCategoryNotFound},
	{core.ErrNotFound, http.StatusNotFound, msgResourceNotFound},

	{services.ErrUsernameTaken, http.StatusBadRequest, msgUsernameTaken},
	{services.ErrEmailTaken, http.StatusBadRequest, msgEmailTaken},
	{services.ErrAdminRequired, http.StatusForbidden, msgAdminRequired},
	{core.ErrForbidden, http.StatusForbidden, msgAdminRequired},
	{core.ErrInvalidCredentials, http.StatusUnauthorized, msgBadCredentials},
	{core.ErrInvalidXPAmount, http.StatusPreconditionFailed, msgInvalidXPAmount},
	{core.ErrConflict, http.StatusConflict, msgConflict},
	{core.ErrInUse, http.StatusConflict, msgCategoryInUse},

	{core.ErrInvalidType, http.StatusBadRequest, msgInvalidType},
	{core.ErrInvalidAmount, http.StatusBadRequest, msgInvalidAmount},
	{core.ErrEmptyDescription, http.StatusBadRequest, fmt.Sprintf(msgRequiredField, "description")},
	{core.ErrDescriptionTooLong, http.StatusBadRequest, msgDescriptionTooLong},
	{core.ErrEmptyCategory, http.StatusBadRequest, fmt.Sprintf(msgRequiredField, "category_id")},
	{core.ErrEmptyCategoryName, http.StatusBadRequest, fmt.Sprintf(msgRequiredField, "name")},
	{core.ErrCategoryNameTooLong, http.StatusBadRequest, msgCategoryNameLong},
	{core.ErrEmptyDate, http.StatusBadRequest, msgInvalidDate},
	{core.ErrInvalidDay, http.StatusBadRequest, msgInvalidDate},
	{core.ErrInvalidMonth, http.StatusBadRequest, msgInvalidDate},
	{core.ErrEmptyUsername, http.StatusBadRequest, fmt.Sprintf(msgRequiredField, "username")},
	{core.ErrUsernameTooLong, http.StatusBadRequest, msgUsernameTooLong},
	{core.ErrEmptyPassword, http.StatusBadRequest, fmt.Sprintf(msgRequiredField, "password")},
	{core.ErrInvalidEmail, http.StatusBadRequest, msgInvalidEmail},
	{core.ErrEmptyPhone, http.StatusBadRequest, fmt.Sprintf(msgRequiredField, "phone")},
	{core.ErrEmptyFullName, http.StatusBadRequest, fmt.Sprintf(msgRequiredField, "full_name")},
	{core.ErrAlreadyExists, http.StatusBadRequest, "Registro já existe"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeServiceError turns err into a JSON error response. Anything it does
// not recognise is logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeError(w, reqErr.status, reqErr.message)
		return
	}
	var mismatch *services.CategoryMismatchError
	if errors.As(err, &mismatch) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf(msgCategoryMismatch, mismatch.CategoryType))
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.message)
			return
		}
	}

	ctx := r.Context()
	log.FromContext(ctx).WithComponent(log.ComponentHTTP).ErrorContext(ctx, "Request failed",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldError, err.Error())
	writeError(w, http.StatusInternalServerError, msgInternal)
}
