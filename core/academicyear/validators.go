package academicyear

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kodomo/core"
)

var (
	endAfterStartTag  = "endafterstart"
	endAfterStartText = "endDate must be after startDate"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newYearStructValidation, NewAcademicYear{})
	validate.RegisterStructValidation(updateYearStructValidation, UpdateAcademicYear{})
	core.RegisterCustomTranslation(validate, translator, endAfterStartTag, endAfterStartText)
}

func newYearStructValidation(sl validator.StructLevel) {
	na := sl.Current().Interface().(NewAcademicYear)
	if !na.StartDate.IsZero() && !na.EndDate.IsZero() && !na.StartDate.Before(na.EndDate) {
		sl.ReportError(na.EndDate, "endDate", "EndDate", endAfterStartTag, "")
	}
}

func updateYearStructValidation(sl validator.StructLevel) {
	ua := sl.Current().Interface().(UpdateAcademicYear)
	if ua.StartDate != nil && ua.EndDate != nil && !ua.StartDate.Before(*ua.EndDate) {
		sl.ReportError(ua.EndDate, "endDate", "EndDate", endAfterStartTag, "")
	}
}
