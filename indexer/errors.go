package indexer

import (
	"errors"
	"fmt"
)

// ConfigError is a fatal misconfiguration: an unknown enum value, a missing
// or malformed strategy parameter, or a strategy the indexer type does not
// admit. Workers do not start with one of these.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// RPCError is a transient transport or node failure. The cycle step that hit
// it is skipped and retried by the loop; the watermark stays put.
type RPCError struct {
	Op  string
	Err error
}

func (e RPCError) Error() string {
	return fmt.Sprintf("rpc error during %s: %s", e.Op, e.Err)
}

func (e RPCError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is fatal at startup
func IsConfigError(err error) bool {
	var it ConfigError
	return errors.As(err, &it)
}
