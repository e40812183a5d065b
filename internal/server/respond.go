package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"motoshop/internal/domain"
)

const maxBodyBytes = 1 << 20

// apiError is the error body of every failed API call
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorBody struct {
	Error  apiError    `json:"error"`
	Result interface{} `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: apiError{Code: code, Message: message}})
}

// errorStatus maps a service error to an HTTP status and body
func errorStatus(err error) (int, apiError) {
	var (
		verr      *domain.ValidationError
		cerr      *domain.ConflictError
		underflow *domain.StockUnderflowError
		rerr      *domain.RemoteWriteError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, apiError{Code: verr.Code, Message: verr.Error(), Field: verr.Field}
	case errors.As(err, &cerr):
		return http.StatusConflict, apiError{Code: cerr.Code, Message: cerr.Error()}
	case errors.As(err, &underflow):
		return http.StatusUnprocessableEntity, apiError{Code: "STOCK_UNDERFLOW", Message: underflow.Error()}
	case errors.As(err, &rerr):
		// checked before ErrNotFound: a store may report a missing row mid-sequence
		return http.StatusBadGateway, apiError{Code: "REMOTE_WRITE_FAILED",
			Message: fmt.Sprintf("Could not save %s. Earlier steps were saved; check the record before retrying.", rerr.Op)}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, apiError{Code: "NOT_FOUND", Message: "The requested record does not exist."}
	}
	return http.StatusInternalServerError, apiError{Code: "INTERNAL", Message: "Something went wrong, please try again."}
}

// writeError reports err to the client. result, when not nil, is what was
// already written before a store failure and is returned alongside the error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, result interface{}) {
	status, body := errorStatus(err)
	log := s.requestLog(r).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.WithField("code", body.Code).Debug("request rejected")
	}
	if status != http.StatusBadGateway {
		result = nil
	}
	writeJSON(w, status, errorBody{Error: body, Result: result})
}

// decodeJSON reads a JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "INVALID_JSON", "The request body is not valid JSON.")
		return false
	}
	return true
}
