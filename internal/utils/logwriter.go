package utils

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogWriterCtx forwards process output to a logger, one entry per line.
type LogWriterCtx struct {
	logger zerolog.Logger
	level  zerolog.Level

	mu  sync.Mutex
	buf []byte
}

func LogWriter(l zerolog.Logger, level zerolog.Level) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
		level:  level,
	}
}

func (l *LogWriterCtx) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	for {
		// ffmpeg ends progress lines with \r
		i := bytes.IndexAny(l.buf, "\r\n")
		if i < 0 {
			break
		}

		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}

	// do not hold on to a runaway line forever
	if len(l.buf) > 4096 {
		l.emit(l.buf)
		l.buf = nil
	}

	return len(p), nil
}

// Flush logs whatever is left without a trailing newline.
func (l *LogWriterCtx) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.emit(l.buf)
	l.buf = nil
}

func (l *LogWriterCtx) emit(line []byte) {
	msg := strings.TrimSpace(string(line))
	if msg == "" {
		return
	}
	l.logger.WithLevel(l.level).Msg(msg)
}
