package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	cpfTag   = "cpf"
	cpfText  = "invalid CPF"
	cnpjTag  = "cnpj"
	cnpjText = "invalid CNPJ"
	inepTag  = "inep"
	inepText = "INEP code must have 8 digits"
	ufTag    = "uf"
	ufText   = "invalid state (UF)"
	phoneTag = "phone_br"
	phoneTxt = "phone must have 10 or 11 digits with a valid area code"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(cpfTag, stringValidation(ValidCPF))
	RegisterCustomTranslation(validate, translator, cpfTag, cpfText)
	_ = validate.RegisterValidation(cnpjTag, stringValidation(ValidCNPJ))
	RegisterCustomTranslation(validate, translator, cnpjTag, cnpjText)
	_ = validate.RegisterValidation(inepTag, stringValidation(ValidINEP))
	RegisterCustomTranslation(validate, translator, inepTag, inepText)
	_ = validate.RegisterValidation(ufTag, stringValidation(ValidUF))
	RegisterCustomTranslation(validate, translator, ufTag, ufText)
	_ = validate.RegisterValidation(phoneTag, stringValidation(ValidPhoneBR))
	RegisterCustomTranslation(validate, translator, phoneTag, phoneTxt)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

// stringValidation adapts a string predicate to a validator.Func. Use with `omitempty` for optional fields.
func stringValidation(valid func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return valid(fl.Field().String())
	}
}
