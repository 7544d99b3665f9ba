// Package invariant reports logic defects: loud outside production, logged
// and survivable inside it.
package invariant

import (
	"fmt"

	"github.com/rs/zerolog"
)

type Guard struct {
	strict bool
	logger zerolog.Logger
}

func New(strict bool, logger zerolog.Logger) *Guard {
	return &Guard{strict: strict, logger: logger}
}

// Check returns ok. A false ok panics in strict mode; otherwise it is logged
// and the caller is expected to clamp and continue.
func (g *Guard) Check(ok bool, format string, args ...any) bool {
	if ok {
		return true
	}
	msg := fmt.Sprintf(format, args...)
	if g == nil || g.strict {
		panic("invariant violated: " + msg)
	}
	g.logger.Error().Str("invariant", msg).Msg("invariant violated")
	return false
}
