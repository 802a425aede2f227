package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	"github.com/mikeydub/go-indexer/env"
	"github.com/mikeydub/go-indexer/service/logger"
	sentryutil "github.com/mikeydub/go-indexer/service/sentry"
	"github.com/mikeydub/go-indexer/util"
)

// AdminRequired is a middleware that checks if the caller is authenticated as an admin
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != env.GetString("ADMIN_PASS") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, util.ErrorResponse{Error: "Unauthorized"})
			return
		}
		c.Next()
	}
}

// HandleCORS sets the CORS headers on every response and short-circuits preflights
func HandleCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestOrigin := c.Request.Header.Get("Origin")

		if IsOriginAllowed(requestOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", requestOrigin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, sentry-trace, baggage")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IsOriginAllowed checks an Origin header against the ALLOWED_ORIGINS env
// var, a comma-separated list where "*" admits everything.
func IsOriginAllowed(requestOrigin string) bool {
	allowed := env.GetString("ALLOWED_ORIGINS")
	if allowed == "" {
		return false
	}
	for _, origin := range strings.Split(allowed, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" || strings.EqualFold(origin, requestOrigin) {
			return true
		}
	}
	return false
}

// ErrLogger logs any errors attached to the context during handling
func ErrLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.For(c).Errorf("%s %s %s %s %s", c.Request.Method, c.Request.URL, c.ClientIP(), c.Request.Header.Get("User-Agent"), c.Errors.JSON())
		}
	}
}

// GinContextToContext stores the gin context inside the request context so
// deeper layers can recover it via util.GinContextFromContext
func GinContextToContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), util.GinContextKey, c)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func Sentry(reportGinErrors bool) gin.HandlerFunc {
	handler := sentrygin.New(sentrygin.Options{Repanic: true})

	return func(c *gin.Context) {
		// Clone a new hub for each request
		hub := sentry.CurrentHub().Clone()

		// BeforeSend isn't called for tracing transactions, so scrub those with
		// an event processor instead.
		hub.Scope().AddEventProcessor(sentryutil.ScrubEventRPCCredentials)

		// Add the cloned hub to the request context so sentrygin will find it
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		// Invoke the sentrygin handler. We don't call c.Next() here because sentrygin does it for us.
		handler(c)

		if reportGinErrors {
			for _, err := range c.Errors {
				sentryutil.ReportError(c.Request.Context(), err)
			}
		}
	}
}
