package assignment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kodomo/core"
)

var (
	staffRoleTag  = "staffrole"
	staffRoleText = "assignmentRole must be one of MainTeacher, AssistantTeacher or empty"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(staffRoleTag, staffRoleValidation)
	core.RegisterCustomTranslation(validate, translator, staffRoleTag, staffRoleText)
}

func staffRoleValidation(fl validator.FieldLevel) bool {
	return StaffRole(fl.Field().String()).IsValid()
}
