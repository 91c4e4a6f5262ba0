package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/photo365/photo365/internal/gallery"
	"github.com/photo365/photo365/internal/logging"
)

// AppOptions controls how the Fiber application treats incoming requests.
type AppOptions struct {
	Logger *logrus.Logger
	// IdentityHeader names the header set by the fronting auth component.
	// Empty means every request is anonymous.
	IdentityHeader string
}

const (
	contextKeyRequestID = "_photo365_request_id"
	contextKeyIdentity  = "_photo365_identity"
)

// NewApp builds a Fiber application with request ID, identity and access log
// middleware. Routes are registered separately by the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(identityMiddleware(strings.TrimSpace(opts.IdentityHeader)))
	app.Use(accessLogMiddleware(opts.Logger))

	return app, nil
}

func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// identityMiddleware 从受信任的请求头解析访问者身份，头缺失或为空白时视为匿名。
func identityMiddleware(header string) fiber.Handler {
	return func(c fiber.Ctx) error {
		id := gallery.Anonymous()
		if header != "" && !isDiagnosticsPath(string(c.Request().URI().Path())) {
			if name := strings.TrimSpace(c.Get(header)); name != "" {
				id = gallery.Named(name)
			}
		}
		c.Locals(contextKeyIdentity, id)
		return c.Next()
	}
}

// accessLogMiddleware 在请求结束后输出一条结构化访问日志，诊断接口使用 debug 级别。
func accessLogMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}
		route := string(c.Request().URI().Path())
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		entry := logger.WithFields(logging.RequestFields(RequestID(c), c.Method(), route, status, Identity(c).String())).
			WithField("elapsed_ms", time.Since(start).Milliseconds())
		switch {
		case isDiagnosticsPath(string(c.Request().URI().Path())):
			entry.Debug("request served")
		case status >= fiber.StatusInternalServerError:
			entry.Error("request failed")
		default:
			entry.Info("request served")
		}
		return err
	}
}

// RequestID returns the request identifier stored by the middleware chain.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// Identity returns the caller identity resolved by the middleware chain.
func Identity(c fiber.Ctx) gallery.Identity {
	if value := c.Locals(contextKeyIdentity); value != nil {
		if id, ok := value.(gallery.Identity); ok {
			return id
		}
	}
	return gallery.Anonymous()
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
