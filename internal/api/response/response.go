// Package response concentra a escrita das respostas JSON usada por todos os handlers.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// Handle escreve data com successStatus, ou o erro traduzido para {code, category, message}.
func Handle(w http.ResponseWriter, r *http.Request, log logger.Logger, data interface{}, err error, successStatus int) {
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(successStatus)
		if data != nil {
			if jsonErr := json.NewEncoder(w).Encode(data); jsonErr != nil {
				log.Error("Falha ao codificar JSON de resposta", jsonErr)
			}
		}
		return
	}

	status, category, message := apperror.MapToHTTPStatus(err)
	if status >= 500 {
		log.Error(fmt.Sprintf("Erro de Servidor: %s", category), err)
	} else {
		log.Debug(fmt.Sprintf("Requisição rejeitada com status %d. Categoria: %s", status, category), map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.ErrorResponse{Code: status, Category: category, Message: message})
}

// DecodeJSON lê o corpo da requisição. Erros viram ValidationError.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperror.NewValidationError("Payload inválido. Verifique o formato JSON.")
	}
	return nil
}

// QueryInt lê um inteiro opcional da query string.
func QueryInt(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewValidationError(fmt.Sprintf("Parâmetro '%s' deve ser numérico.", key))
	}
	return v, nil
}

// QueryBool lê um booleano opcional da query string.
func QueryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperror.NewValidationError(fmt.Sprintf("Parâmetro '%s' deve ser true ou false.", key))
	}
	return v, nil
}

// Pagination lê page e limit.
func Pagination(r *http.Request) (page, limit int, err error) {
	if page, err = QueryInt(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if limit, err = QueryInt(r, "limit", 20); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}
