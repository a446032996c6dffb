package response

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty" validate:"required,min=6,max=72"`
	Status   string `json:"status" validate:"omitempty,oneof=draft published"`
	NoTag    string `validate:"omitempty,min=2"`
}

func validationDetail(t *testing.T, body signupBody) string {
	t.Helper()

	err := NewValidator().Struct(body)
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	return ValidationError(verrs).Detail
}

func TestValidationError_UsesJSONNames(t *testing.T) {
	got := validationDetail(t, signupBody{Email: "nope", Password: "pw1234"})
	assert.Equal(t, "field email is not a valid email", got)

	got = validationDetail(t, signupBody{Email: "a@b.com"})
	assert.Equal(t, "field password is a required field", got)

	got = validationDetail(t, signupBody{Email: "a@b.com", Password: "pw1234", Status: "gone", NoTag: "x"})
	assert.Equal(t, "field status must be one of: draft published, field NoTag must be at least 2 characters", got)
}

func TestValidationError_Max(t *testing.T) {
	got := validationDetail(t, signupBody{Email: "a@b.com", Password: strings.Repeat("x", 73)})
	assert.Equal(t, "field password must be at most 72 characters", got)
}
