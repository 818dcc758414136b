// Package log2 is leveled logger over stdlib *log.Logger.
// Link and RPC debug is noisy, so each subsystem gets own Named logger
// with independent level. Nil *Log is valid and discards everything.
package log2

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sync/atomic"
	"testing"
)

const (
	// type specified here helped against accidentally passing flags as level
	Lmicroseconds     int = log.Lmicroseconds
	Lshortfile        int = log.Lshortfile
	LStdFlags         int = log.Ltime | Lshortfile
	LInteractiveFlags int = log.Ltime | Lshortfile | Lmicroseconds
	LServiceFlags     int = Lshortfile
	LTestFlags        int = Lshortfile | Lmicroseconds
)

type Level int32

const (
	LError Level = iota
	LInfo
	LDebug
	LAll Level = math.MaxInt32
)

// output depth from Log.out to the caller of Infof etc
const callDepth = 3

type Log struct {
	l      *log.Logger
	w      io.Writer
	level  atomic.Int32
	fatalf Func
	errfun atomic.Value // ErrorFunc
}

// ErrorFunc receives every error logged, e.g. to count or report them.
type ErrorFunc func(error)

type Func func(format string, args ...interface{})

// FuncWriter adapts printf-like sink, e.g. testing.T.Logf.
type FuncWriter struct{ Func }

func (fw FuncWriter) Write(b []byte) (int, error) {
	fw.Func("%s", b)
	return len(b), nil
}

func NewStderr(level Level) *Log { return NewWriter(os.Stderr, level) }

// NewWriter returns nil for io.Discard.
func NewWriter(w io.Writer, level Level) *Log {
	if w == io.Discard {
		return nil
	}
	self := &Log{l: log.New(w, "", LStdFlags), w: w}
	self.level.Store(int32(level))
	return self
}

func NewFunc(f Func, level Level) *Log { return NewWriter(FuncWriter{f}, level) }

// NewTest logs into t and turns Fatal into t.Fatalf.
func NewTest(t testing.TB, level Level) *Log {
	self := NewFunc(t.Logf, level)
	self.SetFlags(LTestFlags)
	self.fatalf = t.Fatalf
	return self
}

// Clone shares writer, flags, prefix and error func. Level is independent.
func (self *Log) Clone(level Level) *Log {
	if self == nil {
		return nil
	}
	l := NewWriter(self.w, level)
	l.l.SetFlags(self.l.Flags())
	l.l.SetPrefix(self.l.Prefix())
	l.fatalf = self.fatalf
	if f, ok := self.errfun.Load().(ErrorFunc); ok {
		l.errfun.Store(f)
	}
	return l
}

// Named is Clone at current level with "name: " appended to prefix.
func (self *Log) Named(name string) *Log {
	if self == nil {
		return nil
	}
	l := self.Clone(Level(self.level.Load()))
	l.l.SetPrefix(self.l.Prefix() + name + ": ")
	return l
}

func (self *Log) SetErrorFunc(f ErrorFunc) {
	if self != nil {
		self.errfun.Store(f)
	}
}

func (self *Log) SetLevel(l Level) {
	if self != nil {
		self.level.Store(int32(l))
	}
}

func (self *Log) SetFlags(f int) {
	if self != nil {
		self.l.SetFlags(f)
	}
}

func (self *Log) SetPrefix(prefix string) {
	if self != nil {
		self.l.SetPrefix(prefix)
	}
}

func (self *Log) Enabled(level Level) bool {
	return self != nil && self.level.Load() >= int32(level)
}

func (self *Log) out(level Level, tag, s string) {
	if self.Enabled(level) {
		_ = self.l.Output(callDepth, tag+s)
	}
}

func (self *Log) reportError(e error) {
	if self == nil {
		return
	}
	if f, ok := self.errfun.Load().(ErrorFunc); ok && f != nil {
		f(e)
	}
}

func (self *Log) Error(args ...interface{}) {
	s := fmt.Sprint(args...)
	self.out(LError, "error: ", s)
	if len(args) == 1 {
		if e, ok := args[0].(error); ok {
			self.reportError(e)
			return
		}
	}
	self.reportError(fmt.Errorf("%s", s))
}

func (self *Log) Errorf(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	self.out(LError, "error: ", err.Error())
	self.reportError(err)
}

func (self *Log) Info(args ...interface{}) { self.out(LInfo, "", fmt.Sprint(args...)) }
func (self *Log) Infof(format string, args ...interface{}) {
	self.out(LInfo, "", fmt.Sprintf(format, args...))
}
func (self *Log) Debug(args ...interface{}) { self.out(LDebug, "debug: ", fmt.Sprint(args...)) }
func (self *Log) Debugf(format string, args ...interface{}) {
	self.out(LDebug, "debug: ", fmt.Sprintf(format, args...))
}

// Printf and Println log at info level, for libraries expecting stdlib-like logger.
func (self *Log) Printf(format string, args ...interface{}) {
	self.out(LInfo, "", fmt.Sprintf(format, args...))
}
func (self *Log) Println(args ...interface{}) { self.out(LInfo, "", fmt.Sprint(args...)) }

func (self *Log) Fatalf(format string, args ...interface{}) {
	if self != nil && self.fatalf != nil {
		self.fatalf(format, args...)
		return
	}
	self.out(LError, "fatal: ", fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (self *Log) Fatal(args ...interface{}) {
	self.Fatalf("%s", fmt.Sprint(args...))
}
