package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// ReadAndValidateRequest binds body, path and query into req, applies
// `default` tags, then checks `validate` tags. A nil result means req is
// ready to use. Each failing rule yields one error coded ERR_<TAG>.
func ReadAndValidateRequest(c echo.Context, req any) []*AppError {
	if err := c.Bind(req); err != nil {
		return bindErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return bindErrors(err)
	}
	err := validate.StructCtx(c.Request().Context(), req)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return bindErrors(err)
	}
	out := make([]*AppError, len(fes))
	for i, fe := range fes {
		out[i] = fieldError(fe)
	}
	return out
}

func bindErrors(err error) []*AppError {
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []*AppError{NewAppError("ERR_UNKNOWN", "", msg, http.StatusBadRequest)}
}

func fieldError(fe validator.FieldError) *AppError {
	e := NewAppError("ERR_"+strings.ToUpper(fe.Tag()), fe.Field(), ruleMessage(fe), http.StatusBadRequest)
	switch fe.Tag() {
	case "min", "gte":
		e.WithParam("min", fe.Param())
	case "max", "lte":
		e.WithParam("max", fe.Param())
	case "gt", "lt":
		e.WithParam("value", fe.Param())
	case "len":
		e.WithParam("len", fe.Param())
	case "oneof":
		e.WithParam("options", strings.Fields(fe.Param()))
	}
	return e
}

var ruleTemplates = map[string]string{
	"required":         "%s is required",
	"required_without": "%s is required when %s is absent",
	"len":              "%s must have exactly %s items",
	"gt":               "%s must be greater than %s",
	"gte":              "%s must be at least %s",
	"lt":               "%s must be less than %s",
	"lte":              "%s must be at most %s",
	"uuid":             "%s must be a UUID",
}

func ruleMessage(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch tag := fe.Tag(); tag {
	case "min", "max":
		bound := map[string]string{"min": "at least", "max": "at most"}[tag]
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", field, bound, param)
		}
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array {
			return fmt.Sprintf("%s must have %s %s items", field, bound, param)
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(param), ", "))
	case "required", "uuid":
		return fmt.Sprintf(ruleTemplates[tag], field)
	default:
		if tmpl, ok := ruleTemplates[tag]; ok {
			return fmt.Sprintf(tmpl, field, param)
		}
		return fmt.Sprintf("%s failed the %s rule", field, tag)
	}
}
