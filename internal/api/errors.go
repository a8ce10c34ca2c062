package api

import (
	stderrors "errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
)

const internalMessage = "Transcription failed. Please try another video or try again later."

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorHandler turns handler errors into JSON responses
func ErrorHandler(logger logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		resp := ErrorResponse{
			Success:   false,
			RequestID: requestID(c),
		}

		var fe *fiber.Error
		status := statusFor(err)
		switch {
		case stderrors.As(err, &fe):
			resp.Message = fe.Message
			resp.Error = errorCodeForStatus(fe.Code)
		case status >= fiber.StatusInternalServerError && errors.CodeOf(err) == errors.CodeInternal:
			// internal details stay in the log
			resp.Message = internalMessage
			resp.Error = errors.CodeInternal
		default:
			resp.Message = errors.MessageOf(err)
			resp.Error = errors.CodeOf(err)
		}

		if status >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"request_id": resp.RequestID,
				"path":       c.Path(),
				"code":       resp.Error,
			}).Error("request error")
		}

		return c.Status(status).JSON(resp)
	}
}

func errorCodeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity:
		return errors.CodeInvalidArg
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return errors.CodeNotFound
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case fiber.StatusServiceUnavailable:
		return errors.CodeUnavailable
	default:
		return errors.CodeInternal
	}
}
