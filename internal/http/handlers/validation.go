// README: Custom binding validators shared by the request structs.
package handlers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"sparkle/internal/modules/pricing"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding rules. Safe to call from
// every router construction; gin's validator engine is process-global.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("servicetype", func(fl validator.FieldLevel) bool {
			return pricing.ValidServiceType(pricing.ServiceType(fl.Field().String()))
		})
	})
}
