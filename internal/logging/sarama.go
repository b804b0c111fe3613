package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SaramaLogger adapts the "sarama" component logger to sarama's StdLogger.
// Client chatter goes out at debug level.
type SaramaLogger struct{}

func (SaramaLogger) Print(v ...any) { saramaLog(fmt.Sprint(v...)) }

func (SaramaLogger) Printf(format string, v ...any) { saramaLog(fmt.Sprintf(format, v...)) }

func (SaramaLogger) Println(v ...any) { saramaLog(fmt.Sprintln(v...)) }

func saramaLog(msg string) {
	l := Component("sarama")
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.Debug(strings.TrimSpace(msg))
}
