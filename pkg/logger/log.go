package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type LogStatus int

const (
	VERBOSE LogStatus = iota
	DEBUG
	INFO
	SUCCESS
	NEW
	REMOVE
	STOP
	WARNING
	ERROR
	FATAL
)

var minLoggingLevel = INFO.Level()

func (e LogStatus) String() string {
	return []string{
		"V",
		"D",
		"I",
		"✓",
		"+",
		"-",
		"X",
		"!",
		"!!",
		"PANIC",
	}[e]
}

func (e LogStatus) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Italic),                //Verbose
		color.New(color.FgWhite, color.Italic),                //Debug
		color.New(color.FgWhite),                              //Info
		color.New(color.FgHiGreen),                            //Success
		color.New(color.FgGreen, color.Italic),                //New
		color.New(color.FgYellow, color.Italic),               //Remove
		color.New(color.FgHiYellow),                           //Stop
		color.New(color.FgYellow, color.Underline),            //Warning
		color.New(color.FgHiRed, color.Bold),                  //Error
		color.New(color.FgHiRed, color.Bold, color.Underline), //PANIC
	}[e]
}

func (e LogStatus) Level() int { return int(e) }

// ParseLevel returns the status matching the (case-insensitive) name
// provided, such as "debug" or "warning".
func ParseLevel(name string) (LogStatus, bool) {
	names := []string{"verbose", "debug", "info", "success", "new", "remove", "stop", "warning", "error", "fatal"}
	for i, n := range names {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return LogStatus(i), true
		}
	}

	return INFO, false
}

// SetMinLoggingLevel changes the minimum status a log line must
// have in order to be printed. Lines below this level are discarded.
func SetMinLoggingLevel(level int) {
	Log.(*loggerMgr).setLevel(level)
}

type Logger interface {
	Emit(LogStatus, string, ...any)

	Verbosef(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Successf(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)

	// Goose compatible methods, used so that database migrations
	// are reported through the same logger.
	Print(...any)
	Println(...any)
	Printf(string, ...any)
	Fatal(...any)
	Fatalf(string, ...any)
}

type loggerImpl struct {
	name string
}

func (l *loggerImpl) Emit(status LogStatus, message string, interpolations ...any) {
	Log.Emit(status, l.name, message, interpolations...)
}

func (l *loggerImpl) Verbosef(m string, a ...any) { l.Emit(VERBOSE, m, a...) }
func (l *loggerImpl) Debugf(m string, a ...any)   { l.Emit(DEBUG, m, a...) }
func (l *loggerImpl) Infof(m string, a ...any)    { l.Emit(INFO, m, a...) }
func (l *loggerImpl) Successf(m string, a ...any) { l.Emit(SUCCESS, m, a...) }
func (l *loggerImpl) Warnf(m string, a ...any)    { l.Emit(WARNING, m, a...) }
func (l *loggerImpl) Errorf(m string, a ...any)   { l.Emit(ERROR, m, a...) }

func (l *loggerImpl) Print(a ...any)            { l.Emit(INFO, "%s\n", strings.TrimSuffix(fmt.Sprint(a...), "\n")) }
func (l *loggerImpl) Println(a ...any)          { l.Emit(INFO, "%s\n", strings.TrimSuffix(fmt.Sprintln(a...), "\n")) }
func (l *loggerImpl) Printf(m string, a ...any) { l.Emit(INFO, ensureNewline(m), a...) }
func (l *loggerImpl) Fatal(a ...any) {
	l.Emit(FATAL, "%s\n", strings.TrimSuffix(fmt.Sprint(a...), "\n"))
	os.Exit(1)
}

func (l *loggerImpl) Fatalf(m string, a ...any) {
	l.Emit(FATAL, ensureNewline(m), a...)
	os.Exit(1)
}

type LoggerManager interface {
	GetLogger(string) Logger
	Emit(LogStatus, string, string, ...any)
}

var Log LoggerManager = &loggerMgr{
	offset: 0,
}

// loggerMgr serialises all output so that lines emitted
// from concurrent workers are never interleaved.
type loggerMgr struct {
	sync.Mutex
	offset int
}

func (l *loggerMgr) GetLogger(name string) Logger {
	return &loggerImpl{name: name}
}

func (l *loggerMgr) Emit(status LogStatus, name string, message string, interpolations ...any) {
	l.Lock()
	defer l.Unlock()

	if status.Level() < minLoggingLevel {
		return
	}

	l.setNameOffset(len(name))
	padding := strings.Repeat(" ", l.offset-len(name))
	msg := fmt.Sprintf("[%s] %s(%s) %s", name, padding, status, fmt.Sprintf(message, interpolations...))

	status.Color().Print(msg)
}

func (l *loggerMgr) setLevel(level int) {
	l.Lock()
	defer l.Unlock()

	minLoggingLevel = level
}

func (l *loggerMgr) setNameOffset(offset int) {
	if offset > l.offset {
		l.offset = offset
	}
}

func ensureNewline(m string) string {
	if strings.HasSuffix(m, "\n") {
		return m
	}

	return m + "\n"
}

func Get(name string) Logger {
	return Log.GetLogger(name)
}
