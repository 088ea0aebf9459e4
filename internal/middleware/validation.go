package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"

	"codesync/internal/models"
	"codesync/internal/utils"
)

type contextKey string

const validatedRequestKey contextKey = "validated_request"

// request models implement this interface
type Validator interface {
	Validate() error
}

// ValidateRequest decodes the JSON body into a fresh T, runs its Validate
// method and stores the result in the request context. Decode failures answer
// 400 INVALID_JSON, bodies cut off by a size cap answer 413 CODE_TOO_LARGE and
// validation failures answer 400 with the model's own code.
func ValidateRequest[T Validator]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req T
			reqType := reflect.TypeOf(req)
			if reqType.Kind() == reflect.Ptr {
				req = reflect.New(reqType.Elem()).Interface().(T)
			} else {
				req = reflect.New(reqType).Interface().(T)
			}

			if err := json.NewDecoder(r.Body).Decode(req); err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					utils.Error(w, http.StatusRequestEntityTooLarge, models.ErrCodeCodeTooLarge, "Request body too large")
					return
				}
				utils.Error(w, http.StatusBadRequest, models.ErrCodeInvalidJSON, "Invalid JSON in request body")
				return
			}

			if err := req.Validate(); err != nil {
				var errResp *models.ErrorResponse
				if errors.As(err, &errResp) {
					utils.JSON(w, http.StatusBadRequest, *errResp)
				} else {
					utils.Error(w, http.StatusBadRequest, models.ErrCodeInvalidJSON, err.Error())
				}
				return
			}

			ctx := context.WithValue(r.Context(), validatedRequestKey, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetValidatedRequest retrieves the validated request from context
func GetValidatedRequest[T any](r *http.Request) T {
	return r.Context().Value(validatedRequestKey).(T)
}
