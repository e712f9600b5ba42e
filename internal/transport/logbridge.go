package transport

// #region imports
import (
	"fmt"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// #endregion

// #region bridge

// waLogger adapts zerolog to whatsmeow's logging interface so the library's
// internals share the application's log stream and level filtering.
type waLogger struct {
	log zerolog.Logger
}

// NewWALogger wraps a zerolog logger for whatsmeow.
func NewWALogger(log zerolog.Logger, module string) waLog.Logger {
	return &waLogger{log: log.With().Str("wa_module", module).Logger()}
}

func (w *waLogger) Errorf(msg string, args ...any) { w.log.Error().Msg(fmt.Sprintf(msg, args...)) }
func (w *waLogger) Warnf(msg string, args ...any)  { w.log.Warn().Msg(fmt.Sprintf(msg, args...)) }
func (w *waLogger) Infof(msg string, args ...any)  { w.log.Info().Msg(fmt.Sprintf(msg, args...)) }
func (w *waLogger) Debugf(msg string, args ...any) { w.log.Debug().Msg(fmt.Sprintf(msg, args...)) }

func (w *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{log: w.log.With().Str("wa_module", module).Logger()}
}

// #endregion
