package dto

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// Custom binding rules shared by the request DTOs. Registered once at
// package load so every handler using binding tags picks them up.
func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	// tabularfile rejects file names whose extension no parser handles,
	// before the request reaches storage.
	_ = v.RegisterValidation("tabularfile", func(fl validator.FieldLevel) bool {
		_, err := tabular.KindFromName(fl.Field().String())
		return err == nil
	})
}
