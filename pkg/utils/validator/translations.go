package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

func (v *Validator) registerCustomTranslations() {
	messages := map[string]map[string]string{
		LangEN: {
			TagDocID:        "{0} must start with a letter or digit and contain only letters, digits, '.', '_', ':' or '-' (max 128)",
			TagNoWhitespace: "{0} must not contain whitespace characters",
			TagTrimmed:      "{0} must not have leading or trailing spaces",
			TagPDFPath:      "{0} must be a path to a .pdf file",
		},
		LangZH: {
			TagDocID:        "{0}必须以字母或数字开头，只能包含字母、数字、'.'、'_'、':'或'-'（最多128个字符）",
			TagNoWhitespace: "{0}不能包含空白字符",
			TagTrimmed:      "{0}不能有前导或尾随空格",
			TagPDFPath:      "{0}必须是 .pdf 文件路径",
		},
	}

	for lang, translations := range messages {
		trans := v.translator(lang)
		for tag, message := range translations {
			registerTranslation(v.validate, trans, tag, message)
		}
	}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
