package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// RequestLogger logs one structured line per request.
func RequestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		fields := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"client_ip":   c.IP(),
			"request_id":  c.Get("X-Request-ID"),
		}

		l := log.WithFields(fields)
		switch {
		case status >= 500:
			l.Error("request failed")
		case status >= 400:
			l.Warn("request error")
		default:
			l.Info("request completed")
		}

		return err
	}
}

// ErrorHandler turns any error surfaced from a handler into a
// consistent JSON response, logging at a level keyed off status code.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		fields := map[string]interface{}{
			"error":  err.Error(),
			"status": code,
			"method": c.Method(),
			"path":   c.Path(),
		}
		if code >= 500 {
			log.WithFields(fields).Error("server error")
		} else {
			log.WithFields(fields).Warn("client error")
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error": fiber.Map{
				"code":    errorCode(code),
				"message": message,
			},
		})
	}
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	default:
		if status >= 500 {
			return "INTERNAL_ERROR"
		}
		return "UNKNOWN_ERROR"
	}
}
