package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/seabucks/dealer"
)

const maxBodyBytes = 64 << 10

var (
	validate     = newValidator()
	queryDecoder = schema.NewDecoder()
)

func init() {
	queryDecoder.SetAliasTag("query")
	queryDecoder.IgnoreUnknownKeys(true)
}

// newValidator reports field names as they appear on the wire.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if tag, ok := fld.Tag.Lookup("query"); ok {
			return strings.SplitN(tag, ",", 2)[0]
		}
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// bindJSON applies struct defaults, decodes the body over them and validates the result.
func bindJSON(r *http.Request, dst any) error {
	if err := defaults.Set(dst); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return dealer.NewDealerError(dealer.ErrCodeInvalidRequest, "failed to read request body", dealer.ErrInvalidRequest)
	}
	if len(body) == 0 {
		return dealer.NewDealerError(dealer.ErrCodeInvalidRequest, "no request body", dealer.ErrInvalidRequest)
	}
	if len(body) > maxBodyBytes {
		return dealer.NewDealerError(dealer.ErrCodeInvalidRequest, "request body too large", dealer.ErrInvalidRequest)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return dealer.NewDealerError(dealer.ErrCodeInvalidRequest, "malformed JSON body", errors.Join(dealer.ErrInvalidRequest, err))
	}
	return validateStruct(dst)
}

// bindQuery decodes URL query parameters into dst.
func bindQuery(r *http.Request, dst any) error {
	if err := defaults.Set(dst); err != nil {
		return err
	}
	if err := queryDecoder.Decode(dst, r.URL.Query()); err != nil {
		return dealer.NewDealerError(dealer.ErrCodeInvalidRequest, "malformed query parameters", errors.Join(dealer.ErrInvalidRequest, err))
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return dealer.NewDealerError(dealer.ErrCodeInvalidRequest, "invalid request", errors.Join(dealer.ErrInvalidRequest, err))
	}

	fe := verrs[0]
	var message string
	switch fe.ActualTag() {
	case "required":
		message = fmt.Sprintf("%s is required", fe.Field())
	case "eth_addr":
		message = fmt.Sprintf("%s must be a 0x-prefixed 20-byte hex address", fe.Field())
	case "numeric":
		message = fmt.Sprintf("%s must be a base-10 integer string", fe.Field())
	case "gt":
		message = fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	default:
		message = fmt.Sprintf("%s failed %s validation", fe.Field(), fe.ActualTag())
	}

	return dealer.NewDealerError(dealer.ErrCodeInvalidRequest, message, dealer.ErrInvalidRequest).
		WithDetails("field", fe.Field())
}
