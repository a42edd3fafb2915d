package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tao-tracker/tao-tracker/internal/logging"
)

// 响应头：请求 ID、缓存来源（hit|miss|stale）与数据抓取时间。
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderCacheStatus = "X-Tracker-Cache"
	HeaderFetchedAt   = "X-Tracker-Fetched-At"
)

const contextKeyRequestID = "_tracker_request_id"

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger *logrus.Logger
	// AllowOrigins 默认为 "*"，电子表格的 IMPORTDATA 与浏览器面板都需要跨域读取。
	AllowOrigins []string
}

// NewApp builds a Fiber application with recovery, request IDs, CORS, access
// logging and a JSON error handler. Callers register routes afterwards.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	handleError := errorHandler(opts.Logger)
	// 路径与查询参数会进入缓存槽位，Immutable 让它们不再引用 fasthttp 的复用缓冲区。
	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		Immutable:     true,
		ErrorHandler:  handleError,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions},
		AllowHeaders:  []string{fiber.HeaderContentType},
		ExposeHeaders: []string{HeaderRequestID, HeaderCacheStatus, HeaderFetchedAt},
	}))
	app.Use(accessLogMiddleware(opts.Logger, handleError))

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set(HeaderRequestID, reqID)
		return c.Next()
	}
}

// accessLogMiddleware 在请求结束后输出一行访问日志；诊断接口降为 debug。
func accessLogMiddleware(logger *logrus.Logger, handleError fiber.ErrorHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		if err := c.Next(); err != nil {
			if herr := handleError(c, err); herr != nil {
				return herr
			}
		}

		path := c.Path()
		status := c.Response().StatusCode()
		entry := logger.WithFields(logging.RequestFields(
			RequestID(c),
			c.Method(),
			path,
			status,
			string(c.Response().Header.Peek(HeaderCacheStatus)),
		)).WithField("latency_ms", time.Since(started).Milliseconds())

		switch {
		case isDiagnosticsPath(path):
			entry.Debug("request served")
		case status >= fiber.StatusInternalServerError:
			entry.Warn("request failed")
		default:
			entry.Info("request served")
		}
		return nil
	}
}

// errorHandler 把未处理的错误统一渲染为 {"error": ...}。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			message := fe.Message
			if fe.Code == fiber.StatusNotFound {
				message = "Endpoint not found"
			}
			return c.Status(fe.Code).JSON(fiber.Map{"error": message})
		}

		logger.WithFields(logrus.Fields{
			"action":     "request_error",
			"request_id": RequestID(c),
			"path":       c.Path(),
		}).WithError(err).Error("unhandled request error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
