package gologger

import (
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// out is shared by every logger NewLogger hands out. Logs go to stderr so a
// command's stdout carries only its result.
var out = &switchWriter{w: os.Stderr}

func init() {
	l := NewLogger()
	zerolog.DefaultContextLogger = &l
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		function := ""
		fun := runtime.FuncForPC(pc)
		if fun != nil {
			funName := fun.Name()
			slash := strings.LastIndex(funName, "/")
			if slash > 0 {
				funName = funName[slash+1:]
			}
			function = " " + funName + "()"
		}
		return file + ":" + strconv.Itoa(line) + function
	}
}

func NewLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"

	logger := zerolog.New(out).With().Timestamp().Logger()

	logger = logger.Hook(CallerHook{})

	if os.Getenv("PRETTY") == "1" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	return logger
}

// SetOutput redirects all loggers, including ones created before the call,
// and returns the previous destination.
func SetOutput(w io.Writer) io.Writer {
	out.mu.Lock()
	defer out.mu.Unlock()
	prev := out.w
	out.w = w
	return prev
}

// SetLevel applies a configured level name; unknown names leave the level untouched.
func SetLevel(name string) {
	if name == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

type CallerHook struct{}

func (h CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Caller(3)
}

type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
