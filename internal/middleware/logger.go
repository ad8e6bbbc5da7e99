package middleware

import (
    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"
)

// RequestID tags every request with an X-Request-Id (reusing the client's
// when present).
func RequestID() echo.MiddlewareFunc {
    return echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString})
}

// RequestLogger writes one structured access-log entry per request.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURI:       true,
        LogStatus:    true,
        LogLatency:   true,
        LogRemoteIP:  true,
        LogRequestID: true,
        LogError:     true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            fields := []zap.Field{
                zap.String("method", v.Method),
                zap.String("uri", v.URI),
                zap.Int("status", v.Status),
                zap.Duration("latency", v.Latency),
                zap.String("remote_ip", v.RemoteIP),
                zap.String("request_id", v.RequestID),
            }
            if id, ok := IdentityFrom(c); ok {
                fields = append(fields, zap.Uint64("user_id", id.ID))
            }
            switch {
            case v.Error != nil:
                log.Error("request", append(fields, zap.Error(v.Error))...)
            case v.Status >= 500:
                log.Error("request", fields...)
            default:
                log.Info("request", fields...)
            }
            return nil
        },
    })
}
