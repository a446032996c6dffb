package response

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// Response is the body of every non-2xx answer.
type Response struct {
	Detail string `json:"detail"`
}

const (
	MsgBadRequest     = "Failed to decode request"
	MsgInternal       = "Internal Server Error"
	MsgNotFound       = "Not Found"
	MsgNotAllowed     = "Method Not Allowed"
	MsgNotAuth        = "Not authenticated"
	MsgInvalidToken   = "Invalid token"
	MsgTooManyRequest = "Too Many Requests"
)

func Error(msg string) Response {
	return Response{Detail: msg}
}

// NewValidator reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}

		return name
	})

	return v
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be at least %s characters", err.Field(), err.Param()))
		case "max":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be at most %s characters", err.Field(), err.Param()))
		case "oneof":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{
		Detail: strings.Join(errMsgs, ", "),
	}
}

// Fail writes a {detail} body with the given status.
func Fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, Error(msg))
}
