package serverutils

import (
	"errors"

	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/viewer/bridge"
	"medviewer-be/pkg/viewer/cursor"
	"medviewer-be/pkg/viewer/scene"
	"medviewer-be/pkg/viewer/session"

	"github.com/gofiber/fiber/v2"
)

var statusByError = []struct {
	err  error
	code int
}{
	{dataset.ErrUnsupportedFormat, fiber.StatusUnsupportedMediaType},
	{dataset.ErrInvalidDataset, fiber.StatusUnprocessableEntity},
	{session.ErrBusy, fiber.StatusConflict},
	{session.ErrClosed, fiber.StatusGone},
	{scene.ErrDuplicateID, fiber.StatusConflict},
	{scene.ErrUnknownView, fiber.StatusNotFound},
	{scene.ErrUnknownDataset, fiber.StatusNotFound},
	{scene.ErrUnknownPreset, fiber.StatusNotFound},
	{scene.ErrNoPrimaryVolume, fiber.StatusConflict},
	{scene.ErrWidgetDisabled, fiber.StatusConflict},
	{cursor.ErrAxisAligned, fiber.StatusConflict},
	{scene.ErrBadOpacity, fiber.StatusBadRequest},
	{scene.ErrBadValue, fiber.StatusBadRequest},
	{cursor.ErrZeroNormal, fiber.StatusBadRequest},
	{cursor.ErrThickness, fiber.StatusBadRequest},
	{cursor.ErrInvalidPlane, fiber.StatusBadRequest},
	{bridge.ErrUnbound, fiber.StatusBadRequest},
	{bridge.ErrSuppressed, fiber.StatusConflict},
}

// StatusCode maps an error returned by a handler to its HTTP status.
func StatusCode(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return fiber.StatusInternalServerError
}

// ErrorHandlerMiddleware renders handler errors with the common envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusCode(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
