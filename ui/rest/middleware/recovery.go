package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Recovery renders panics as a ResponseData envelope. Panics carrying a
// pkgError.GenericError keep their status and code.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			res := utils.ResponseData{
				Status:  500,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", err),
			}

			var generic pkgError.GenericError
			if e, ok := err.(error); ok && errors.As(e, &generic) {
				res.Status = generic.StatusCode()
				res.Code = generic.ErrCode()
				res.Message = generic.Error()
			} else {
				logrus.Errorf("[REST] Panic recovered: %v", err)
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
