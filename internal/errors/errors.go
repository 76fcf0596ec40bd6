package errors

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeDataLoss           = Code(codes.DataLoss)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodePermissionDenied:   http.StatusForbidden,
	CodeResourceExhausted:  http.StatusTooManyRequests,
	CodeFailedPrecondition: http.StatusBadRequest,
	CodeAborted:            http.StatusConflict,
	CodeDataLoss:           http.StatusInternalServerError,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// Reason is the stable, player-facing name of a failure.
type Reason string

const (
	ReasonInvalidInput     Reason = "InvalidInput"
	ReasonLocked           Reason = "Locked"
	ReasonUnknownCode      Reason = "UnknownCode"
	ReasonWrongSequence    Reason = "WrongSequence"
	ReasonIncorrectAnswer  Reason = "IncorrectAnswer"
	ReasonDivisionMismatch Reason = "DivisionMismatch"
	ReasonAlreadyAttempted Reason = "AlreadyAttempted"
	ReasonAlreadyAdvanced  Reason = "AlreadyAdvanced"
	ReasonOutOfSync        Reason = "OutOfSync"
	ReasonChallengeMissing Reason = "ChallengeMissing"
	ReasonDataIntegrity    Reason = "DataIntegrityError"
	ReasonEventNotRunning  Reason = "EventNotRunning"
	ReasonNotFound         Reason = "NotFound"
	ReasonUnauthenticated  Reason = "Unauthenticated"
	ReasonInternal         Reason = "Internal"
)

type Error struct {
	Code       Code          `json:"code"`
	Reason     Reason        `json:"reason"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
	err        error
}

func New(code Code, reason Reason, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Reason:  reason,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, reason: %s, message: %s", e.Code, e.Reason, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// RemainingSeconds is the retry delay rounded up to whole seconds.
func (e *Error) RemainingSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Is matches errors by reason, so errors.Is(err, errors.Locked(0)) holds for any lockout.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// ReasonOf returns the reason of err, or ReasonInternal for foreign errors.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	return Convert(err).Reason
}

func Internal(err error) *Error {
	return New(CodeInternal, ReasonInternal, WithCause(err))
}

func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidArgument, ReasonInvalidInput, WithMessagef(format, args...))
}

func Locked(remaining time.Duration) *Error {
	return New(CodeResourceExhausted, ReasonLocked,
		WithMessagef("system locked, cooldown active"),
		WithRetryAfter(remaining))
}

func UnknownCode(cooldown time.Duration) *Error {
	return New(CodeNotFound, ReasonUnknownCode,
		WithMessagef("invalid code detected, try again"),
		WithRetryAfter(cooldown))
}

func WrongSequence(cooldown time.Duration) *Error {
	return New(CodeFailedPrecondition, ReasonWrongSequence,
		WithMessagef("incorrect checkpoint sequence, try the current objective"),
		WithRetryAfter(cooldown))
}

func IncorrectAnswer(cooldown time.Duration) *Error {
	return New(CodeFailedPrecondition, ReasonIncorrectAnswer,
		WithMessagef("incorrect answer, try again"),
		WithRetryAfter(cooldown))
}

func DivisionMismatch(division string) *Error {
	return New(CodePermissionDenied, ReasonDivisionMismatch,
		WithMessagef("division mismatch, this checkpoint is restricted to division %s", division))
}

func AlreadyAttempted(step int) *Error {
	return New(CodeAlreadyExists, ReasonAlreadyAttempted,
		WithMessagef("quiz for step %d already attempted", step))
}

func AlreadyAdvanced() *Error {
	return New(CodeAborted, ReasonAlreadyAdvanced,
		WithMessagef("step already advanced, refresh your state"))
}

func OutOfSync() *Error {
	return New(CodeAborted, ReasonOutOfSync,
		WithMessagef("synchronization error, refresh your state"))
}

func ChallengeMissing() *Error {
	return New(CodeNotFound, ReasonChallengeMissing,
		WithMessagef("challenge data missing"))
}

func DataIntegrity(format string, args ...any) *Error {
	return New(CodeDataLoss, ReasonDataIntegrity, WithMessagef(format, args...))
}

func EventNotRunning(format string, args ...any) *Error {
	return New(CodeFailedPrecondition, ReasonEventNotRunning, WithMessagef(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, ReasonNotFound, WithMessagef(format, args...))
}

func Unauthenticated(format string, args ...any) *Error {
	return New(CodeUnauthenticated, ReasonUnauthenticated, WithMessagef(format, args...))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithRetryAfter(d time.Duration) Option {
	return optionFunc(func(e *Error) {
		e.RetryAfter = d
	})
}
