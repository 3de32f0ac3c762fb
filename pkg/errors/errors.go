package errors // import "autovader.dev/cmd/pkg/errors"

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
)

var (
	ErrOutOfScope    = errors.New("target is not in scope")
	ErrInvalidOrigin = errors.New("binding called from a foreign origin")
	ErrBadBinding    = errors.New("binding called with unexpected arguments")
	ErrUnknownKind   = errors.New("unknown kind")
	ErrNoTargets     = errors.New("no targets to scan")
)

type E struct {
	Err error
	pc  []uintptr
}

func (e *E) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Frames resolves the call site recorded when e was created.
func (e *E) Frames() *runtime.Frames {
	if e == nil {
		return runtime.CallersFrames(nil)
	}
	return runtime.CallersFrames(e.pc)
}

// Caller returns file:line of where the outermost E in err's chain was
// created, or "" when there is none.
func Caller(err error) string {
	var e *E
	if !errors.As(err, &e) {
		return ""
	}
	f, _ := e.Frames().Next()
	if f.File == "" {
		return ""
	}
	return filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
}

func New(format string, args ...any) error {
	e := &E{
		Err: fmt.Errorf(format, args...),
		pc:  make([]uintptr, 10),
	}

	n := runtime.Callers(2, e.pc)
	e.pc = e.pc[:n]

	return e
}

func Join(err ...error) error {
	return errors.Join(err...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
