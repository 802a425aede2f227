package util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// GinContextKey is the request context key the gin context is stored under
const GinContextKey string = "GinContextKey"

// Map applies f to every element of xs, failing on the first error
func Map[T, U any](xs []T, f func(T) (U, error)) ([]U, error) {
	result := make([]U, len(xs))
	for i, x := range xs {
		it, err := f(x)
		if err != nil {
			return nil, err
		}
		result[i] = it
	}
	return result, nil
}

// Dedupe removes duplicate elements from a slice, preserving the order of the remaining elements.
func Dedupe[T comparable](src []T, filterInPlace bool) []T {
	var result []T
	if filterInPlace {
		result = src[:0]
	} else {
		result = make([]T, 0, len(src))
	}
	seen := make(map[T]bool)
	for _, x := range src {
		if !seen[x] {
			result = append(result, x)
			seen[x] = true
		}
	}
	return result
}

func Contains[T comparable](s []T, str T) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}

	return false
}

// GinContextFromContext retrieves a gin.Context previously stored in the request context via
// the GinContextToContext middleware, or panics if no gin.Context can be retrieved.
func GinContextFromContext(ctx context.Context) *gin.Context {
	// If the current context is already a gin context, return it
	if gc, ok := ctx.(*gin.Context); ok {
		return gc
	}

	ginContext := ctx.Value(GinContextKey)
	if ginContext == nil {
		panic("gin.Context not found in current context")
	}

	gc, ok := ginContext.(*gin.Context)
	if !ok {
		panic("gin.Context has wrong type")
	}

	return gc
}

// FindFile finds a file relative to the working directory
// by searching outer directories up to the search depth.
// Mostly for testing purposes.
func FindFile(f string, searchDepth int) (string, error) {
	if _, err := os.Stat(f); err == nil {
		return f, nil
	}

	for i := 0; i < searchDepth; i++ {
		f = filepath.Join("..", f)
		if _, err := os.Stat(f); err == nil {
			return f, nil
		}
	}

	return "", fmt.Errorf("could not find file '%s' in path", f)
}

// MustFindFile panics if the file is not found up to the default search depth.
func MustFindFile(f string) string {
	f, err := FindFile(f, 5)
	if err != nil {
		panic(err)
	}
	return f
}
