package recurrence

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	dateTag  = "date"
	dateText = "date must be formatted as YYYY-MM-DD"

	weekdaysTag  = "weekdays"
	weekdaysText = "unknown weekday, use mon to sun"

	monthsTag  = "months"
	monthsText = "unknown month, use jan to dec"
)

// InitValidators registers the rule validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(dateTag, dateValidation)
	core.RegisterCustomTranslation(validate, translator, dateTag, dateText)

	_ = validate.RegisterValidation(weekdaysTag, weekdaysValidation)
	core.RegisterCustomTranslation(validate, translator, weekdaysTag, weekdaysText)

	_ = validate.RegisterValidation(monthsTag, monthsValidation)
	core.RegisterCustomTranslation(validate, translator, monthsTag, monthsText)
}

func dateValidation(fl validator.FieldLevel) bool {
	_, err := ParseDate(fl.Field().String())
	return err == nil
}

func weekdaysValidation(fl validator.FieldLevel) bool {
	days, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, d := range days {
		if _, ok := ParseWeekday(d); !ok {
			return false
		}
	}
	return true
}

func monthsValidation(fl validator.FieldLevel) bool {
	months, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, m := range months {
		if _, ok := ParseMonth(m); !ok {
			return false
		}
	}
	return true
}
