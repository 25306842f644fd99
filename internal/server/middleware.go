package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/identity"
)

const (
	headerRequestID = "X-Request-ID"

	keyRequestID = "request_id"
	keyIdentity  = "identity"
	keySnapshot  = "snapshot"
	keyAuthError = "auth_error"
)

// RequestID middleware reuses an inbound X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		c.Header(headerRequestID, requestID)
		c.Set(keyRequestID, requestID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// GetRequestID gets the request ID from gin context
func GetRequestID(c *gin.Context) string {
	if requestID, ok := c.Get(keyRequestID); ok {
		if s, ok := requestID.(string); ok {
			return s
		}
	}
	return ""
}

// Recovery turns a panic into a 500 envelope.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					"error", err,
					"request_id", GetRequestID(c),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				abortWithError(c, common.NewAppError(common.CodeInternal, "internal error", common.ErrInternal))
			}
		}()
		c.Next()
	}
}

// RequestLogger logs one line per request. Query strings and bodies are never logged.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", GetRequestID(c),
		}
		if snap, ok := snapshotFrom(c); ok {
			attrs = append(attrs, "tier", snap.Tier)
		}

		switch {
		case status >= 500:
			logger.Error("request completed", attrs...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// CORS allows the configured browser origins.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders:    []string{headerRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Deadline bounds the whole request. Extraction and model timeouts are shorter.
func Deadline(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Identify resolves the caller once: it verifies the bearer token when one is present and
// takes the entitlement snapshot the rest of the request runs under. It never aborts on a
// bad token; RequireIdentity does.
func Identify(verifier *identity.Verifier, resolver *entitlement.Resolver, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var id *identity.Identity
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			verified, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("auth.token.rejected", "request_id", GetRequestID(c), "error", err)
				c.Set(keyAuthError, err)
			} else {
				id = verified
				c.Set(keyIdentity, id)
				c.Request = c.Request.WithContext(common.WithSubscriberID(c.Request.Context(), id.ID))
			}
		}

		snap, err := resolver.Resolve(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(keySnapshot, snap)
		c.Next()
	}
}

// RequireIdentity rejects callers without a valid session before any work is done.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identityFrom(c); !ok {
			msg := "authentication required"
			if _, bad := c.Get(keyAuthError); bad {
				msg = "invalid or expired session"
			}
			abortWithError(c, common.NewAuthError(msg))
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func identityFrom(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(keyIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*identity.Identity)
	return id, ok && id != nil
}

func snapshotFrom(c *gin.Context) (entitlement.Snapshot, bool) {
	v, ok := c.Get(keySnapshot)
	if !ok {
		return entitlement.Snapshot{}, false
	}
	snap, ok := v.(entitlement.Snapshot)
	return snap, ok
}
