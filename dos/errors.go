// Package dos defines the small set of DOS error codes and the tagged
// result type services return, per the INT 21h CF/AX contract.
package dos

import "fmt"

// Code is a DOS error code as returned in AX when CF is set.
type Code uint16

// The error codes this core surfaces to the guest.
const (
	NoError           Code = 0
	FunctionInvalid   Code = 1
	FileNotFound      Code = 2
	PathNotFound      Code = 3
	TooManyOpenFiles  Code = 4
	AccessDenied      Code = 5
	InvalidHandle     Code = 6
	McbDestroyed      Code = 7
	InsufficientMem   Code = 8
	McbAddressInvalid Code = 9
	EnvironmentInvalid Code = 10
	FormatInvalid     Code = 11
	AccessCodeInvalid Code = 12
	DataInvalid       Code = 13
	InvalidDrive      Code = 15
	RemoveCurrentDir  Code = 16
	NotSameDevice     Code = 17
	NoMoreFiles       Code = 18
)

var names = map[Code]string{
	NoError:            "no error",
	FunctionInvalid:    "function invalid",
	FileNotFound:       "file not found",
	PathNotFound:       "path not found",
	TooManyOpenFiles:   "too many open files",
	AccessDenied:       "access denied",
	InvalidHandle:      "invalid handle",
	McbDestroyed:       "memory control blocks destroyed",
	InsufficientMem:    "insufficient memory",
	McbAddressInvalid:  "memory control block address invalid",
	EnvironmentInvalid: "environment invalid",
	FormatInvalid:      "format invalid",
	AccessCodeInvalid:  "access code invalid",
	DataInvalid:        "data invalid",
	InvalidDrive:       "invalid drive",
	RemoveCurrentDir:   "attempt to remove current directory",
	NotSameDevice:      "not same device",
	NoMoreFiles:        "no more files",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("dos error %d", uint16(c))
}

func (c Code) Error() string { return c.String() }

// Result is the tagged outcome of a service call: either a success,
// carrying a value through Value, or a failure carrying a Code.
type Result struct {
	Code  Code
	Value uint32
}

// OK reports whether the result represents success (NoError).
func (r Result) OK() bool { return r.Code == NoError }

// Ok builds a successful Result carrying value.
func Ok(value uint32) Result { return Result{Code: NoError, Value: value} }

// Err builds a failing Result for the given code.
func Err(code Code) Result { return Result{Code: code} }

// Abort is the sentinel type for unrecoverable conditions, for a host shell
// to handle. No service in this module returns it: a host I/O failure on an
// open stream is reported as AccessDenied, and a corrupted MCB chain as
// McbDestroyed.
type Abort struct {
	cause error
}

// NewAbort wraps cause as an unrecoverable emulator-abort condition.
func NewAbort(cause error) *Abort { return &Abort{cause: cause} }

func (a *Abort) Error() string { return "unrecoverable: " + a.cause.Error() }

func (a *Abort) Unwrap() error { return a.cause }
