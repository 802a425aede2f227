package env

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/spf13/viper"
)

var validators = map[string][]string{}

var v = validator.New()

var validatorsMu = &sync.Mutex{}

func init() {
	v.RegisterValidation("required_for_env", RequiredForEnv)
}

// RegisterValidation attaches validation tags to an env var. The tags run
// against the var's value whenever it is read.
func RegisterValidation(name string, tags ...string) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	validators[name] = dedupe(append(validators[name], tags...))
}

func Get[T any](name string) T {
	validate(name)

	if !viper.IsSet(name) {
		return *new(T)
	}

	it, ok := viper.Get(name).(T)
	if !ok {
		logger.For(nil).Errorf("invalid env var: %s, expected type: %T", name, it)
		return *new(T)
	}

	return it
}

func GetIfExists[T any](name string) (T, bool) {
	validate(name)

	if !viper.IsSet(name) {
		return *new(T), false
	}

	it, ok := viper.Get(name).(T)
	if !ok {
		logger.For(nil).Errorf("invalid env var: %s, expected type: %T", name, it)
		return *new(T), false
	}

	return it, true
}

func GetString(name string) string {
	validate(name)
	return viper.GetString(name)
}

func GetInt(name string) int {
	validate(name)
	return viper.GetInt(name)
}

func GetInt64(name string) int64 {
	validate(name)
	return viper.GetInt64(name)
}

func GetBool(name string) bool {
	validate(name)
	return viper.GetBool(name)
}

func GetFloat64(name string) float64 {
	validate(name)
	return viper.GetFloat64(name)
}

func validate(name string) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	for _, tag := range validators[name] {
		err := v.Var(viper.GetString(name), tag)
		if err != nil {
			logger.For(nil).Errorf("invalid env var: %s, tag: %s, err: %s", name, tag, err.Error())
		}
	}
}

// RequiredForEnv requires a value whenever the current ENV matches the tag
// parameter, e.g. "required_for_env=production".
var RequiredForEnv validator.Func = func(fl validator.FieldLevel) bool {
	if !strings.EqualFold(fl.Param(), viper.GetString("ENV")) {
		return true
	}
	return fl.Field().String() != ""
}

func dedupe(src []string) []string {
	result := src[:0]

	seen := make(map[string]bool)
	for _, x := range src {
		if !seen[x] {
			result = append(result, x)
			seen[x] = true
		}
	}

	return result
}
