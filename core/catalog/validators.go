package catalog

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
)

var (
	courseCodeTag   = "coursecode"
	courseCodeText  = "course codes are 2 to 20 uppercase letters, digits, dashes or underscores"
	courseCodeRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{1,19}$`)

	levelTag  = "level"
	levelText = "invalid level"

	datesTag  = "dates"
	datesText = "end date cannot be before start date"
)

// InitValidators registers the catalog validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(courseCodeTag, courseCodeValidation)
	core.RegisterCustomTranslation(validate, translator, courseCodeTag, courseCodeText)

	_ = validate.RegisterValidation(levelTag, levelValidation)
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)

	validate.RegisterStructValidation(courseStructValidation, NewCourse{})
	core.RegisterCustomTranslation(validate, translator, datesTag, datesText)
}

func courseCodeValidation(fl validator.FieldLevel) bool {
	return courseCodeRegex.MatchString(fl.Field().String())
}

func levelValidation(fl validator.FieldLevel) bool {
	return IsLevel(fl.Field().String())
}

func courseStructValidation(sl validator.StructLevel) {
	if nc, ok := sl.Current().Interface().(NewCourse); ok {
		if !nc.StartDate.IsZero() && !nc.EndDate.IsZero() && nc.EndDate.Before(nc.StartDate) {
			sl.ReportError(nc.EndDate, "end_date", "EndDate", datesTag, "")
		}
	}
}
