package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"
)

func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func HttpError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// BindAndValidate decodes the JSON body into out and validates it. On failure it has
// already written a 400 response and the handler must return.
func BindAndValidate(w http.ResponseWriter, r *http.Request, out any, v *validatorv10.Validate) error {
	if err := DecodeJSON(io.LimitReader(r.Body, 1<<20), out); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
