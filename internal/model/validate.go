package model

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// validate is shared by every model type. Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("difficulty", validateDifficulty)
	validate.RegisterAlias("post_title", fmt.Sprintf("max=%d", MaxPostTitleLen))
	validate.RegisterAlias("post_content", fmt.Sprintf("max=%d", MaxPostContentLen))
	validate.RegisterAlias("reply_content", fmt.Sprintf("max=%d", MaxReplyLen))
}

func validateDifficulty(fl validator.FieldLevel) bool {
	return Difficulty(fl.Field().String()).Valid()
}

// NormalizeText puts user text in NFC form and trims surrounding whitespace,
// so that "é" typed as e + combining accent compares equal to the precomposed form.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
