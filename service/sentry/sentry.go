package sentryutil

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"

	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/util"
)

const errorContextName = "error context"

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

func ReportRemappedError(ctx context.Context, originalErr error, remappedErr interface{}) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		logger.For(ctx).Warnln("could not report error to Sentry because hub is nil")
		return
	}

	// Use a new scope so our error context and tag don't persist beyond this error
	hub.WithScope(func(scope *sentry.Scope) {
		if remappedErr != nil {
			SetErrorContext(scope, true, fmt.Sprintf("%T", remappedErr))
			scope.SetTag("remappedError", "true")
		} else {
			SetErrorContext(scope, false, "")
		}

		hub.CaptureException(originalErr)
	})
}

func ReportError(ctx context.Context, err error) {
	ReportRemappedError(ctx, err, nil)
}

// ScrubEventRPCCredentials removes node credentials from outgoing events.
// RPC providers key their URLs by path or userinfo, so anything past the
// host is dropped.
func ScrubEventRPCCredentials(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event == nil {
		return event
	}

	event.Message = scrubURLs(event.Message)
	for i, e := range event.Exception {
		event.Exception[i].Value = scrubURLs(e.Value)
	}
	for i, b := range event.Breadcrumbs {
		event.Breadcrumbs[i].Message = scrubURLs(b.Message)
	}

	return event
}

func scrubURLs(s string) string {
	if s == "" {
		return s
	}
	return urlPattern.ReplaceAllStringFunc(s, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil {
			return "[scrubbed]"
		}
		if u.User == nil && (u.Path == "" || u.Path == "/") && u.RawQuery == "" {
			return raw
		}
		return u.Scheme + "://" + u.Host + "/[scrubbed]"
	})
}

func UpdateErrorFingerprints(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event == nil || hint == nil || hint.OriginalException == nil {
		return event
	}

	// This is a hacky way to do this -- we'd rather check the actual type than a string, but
	// the errors.errorString type isn't exported and we'd really like a way to separate those
	// errors on Sentry. It's not very useful to group every error created with errors.New().
	exceptionType := fmt.Sprintf("%T", hint.OriginalException)
	if exceptionType == "*errors.errorString" {
		event.Fingerprint = []string{"{{ default }}", hint.OriginalException.Error()}
	}

	return event
}

func SetErrorContext(scope *sentry.Scope, mapped bool, mappedTo string) {
	scope.SetContext(errorContextName, sentry.Context{
		"mapped":   mapped,
		"mappedTo": mappedTo,
	})
}

func NewSentryHubContext(ctx context.Context, hub *sentry.Hub) context.Context {
	var cpy *sentry.Hub

	if hub != nil {
		cpy = hub.Clone()
	}

	return sentry.SetHubOnContext(ctx, cpy)
}

// SentryHubFromContext gets a Hub from the supplied context, or from an
// underlying gin.Context if one is available.
func SentryHubFromContext(ctx context.Context) *sentry.Hub {
	// Get a hub via Sentry's standard mechanism if possible
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}

	// Otherwise, see if there's a hub stored on the gin context
	gc := util.GinContextFromContext(ctx)
	if hub := sentrygin.GetHubFromContext(gc); hub != nil {
		return hub
	}

	return nil
}

// RecoverAndRaise reports a panic before letting it propagate.
func RecoverAndRaise(ctx context.Context) {
	if r := recover(); r != nil {
		var hub *sentry.Hub
		if ctx != nil {
			hub = sentry.GetHubFromContext(ctx)
		}
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		if hub != nil {
			hub.Recover(r)
			sentry.Flush(2 * time.Second)
		}
		panic(r)
	}
}
