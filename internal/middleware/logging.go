package middleware

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger logs HTTP requests with timing info.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			req := c.Request()
			res := c.Response()

			// Determine status code
			status := res.Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = 500
				}
			}

			reqID := GetRequestID(c)

			logEntry := fmt.Sprintf("%s | %s | %3d | %12s | %15s | %-7s | %s",
				time.Now().Format("2006-01-02 15:04:05"),
				reqID,
				status,
				duration.Round(time.Microsecond),
				c.RealIP(),
				req.Method,
				req.URL.Path,
			)

			if req.URL.RawQuery != "" {
				logEntry += fmt.Sprintf(" | query=%s", req.URL.RawQuery)
			}

			// Color code by status class
			switch {
			case status >= 500:
				fmt.Printf("\033[31m%s\033[0m\n", logEntry) // Red for 5xx
			case status >= 400:
				fmt.Printf("\033[33m%s\033[0m\n", logEntry) // Yellow for 4xx
			case status >= 300:
				fmt.Printf("\033[36m%s\033[0m\n", logEntry) // Cyan for 3xx
			default:
				fmt.Printf("\033[32m%s\033[0m\n", logEntry) // Green for 2xx
			}

			return err
		}
	}
}

// RecoveryMiddleware recovers from panics and logs them.
func RecoveryMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					reqID := GetRequestID(c)

					fmt.Printf("\033[31m[PANIC] [%s] %v\033[0m\n", reqID, r)

					req := c.Request()
					fmt.Printf("\033[31m[PANIC] [%s] Request: %s %s\033[0m\n", reqID, req.Method, req.URL.Path)

					c.Error(echo.NewHTTPError(500, "Internal server error"))
				}
			}()

			return next(c)
		}
	}
}
