package dto

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	usernameRe = regexp.MustCompile(`^[a-z0-9]+$`)
	emailRe    = regexp.MustCompile(`^\S+@\S+\.([a-z]{2,})+$`)
)

// NewValidator returns a validator with the "username" and "emailaddr" tags
// registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("emailaddr", func(fl validator.FieldLevel) bool {
		return emailRe.MatchString(fl.Field().String())
	})
	return v
}

func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
