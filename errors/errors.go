/*
 * MIT License
 *
 * Copyright (c) 2022-2025  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrDead is returned when a message is sent to a process that has stopped.
	ErrDead = errors.New("process is not alive")

	// ErrAuthorityNotRunning is returned when the Authority is asked to serve a request
	// before it has finished loading or after it has been shut down.
	ErrAuthorityNotRunning = errors.New("authority is not running")

	// ErrReplicaNotStarted is returned by replica operations invoked before Start.
	ErrReplicaNotStarted = errors.New("replica is not started")

	// ErrRequestTimeout indicates that an Ask did not receive a response in time.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrUnhandled is returned when a process receives a message it cannot handle.
	ErrUnhandled = errors.New("unhandled message")

	// ErrMailboxDisposed is returned when enqueuing into a disposed mailbox.
	ErrMailboxDisposed = errors.New("mailbox is disposed")

	// ErrInvalidLogicVersionRange is returned when the requested range has Min greater than Max.
	ErrInvalidLogicVersionRange = errors.New("invalid logic version range")

	// ErrLogicVersionOutOfBounds is returned when a logic version lies outside the build's supported range.
	ErrLogicVersionOutOfBounds = errors.New("logic version out of bounds")

	// ErrTimeSkipDisabled is returned when changing the game time offset while time skipping is disabled.
	ErrTimeSkipDisabled = errors.New("time skip is disabled")

	// ErrGameTimeOffsetDecrease is returned when the requested game time offset is below the current one.
	ErrGameTimeOffsetDecrease = errors.New("game time offset cannot decrease")

	// ErrInvalidBroadcast is returned when a broadcast message is structurally invalid.
	ErrInvalidBroadcast = errors.New("invalid broadcast message")

	// ErrInvalidMaintenanceMode is returned when a maintenance window is malformed.
	ErrInvalidMaintenanceMode = errors.New("invalid maintenance mode")

	// ErrInvalidExperimentChange is returned when an experiment edit is rejected.
	ErrInvalidExperimentChange = errors.New("invalid experiment change")

	// ErrExperimentNotFound is returned when an experiment id is unknown.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrSupportedVersionRollback is returned at startup when the build declares a maximum
	// supported logic version lower than a previous build did.
	ErrSupportedVersionRollback = errors.New("supported logic version rollback")

	// ErrUnsupportedSchemaVersion is returned when a persisted payload cannot be migrated.
	ErrUnsupportedSchemaVersion = errors.New("unsupported schema version")

	// ErrSubscriptionLost is reported to a subscriber whose update stream has been interrupted.
	ErrSubscriptionLost = errors.New("subscription lost")

	// ErrAuthorityTerminated is reported to subscribers when the Authority shuts down.
	ErrAuthorityTerminated = errors.New("authority terminated")

	// ErrConfigResolution is returned when a game config cannot be resolved.
	ErrConfigResolution = errors.New("game config resolution failed")

	// ErrUnknownUpdateKind is returned when decoding an update of an unregistered kind.
	ErrUnknownUpdateKind = errors.New("unknown update kind")
)

// NewErrLogicVersionOutOfBounds formats ErrLogicVersionOutOfBounds naming the offending bound
func NewErrLogicVersionOutOfBounds(bound string, value, limit int) error {
	return NewValidationError(bound, fmt.Errorf("%w: %s %d is outside the supported bound %d", ErrLogicVersionOutOfBounds, bound, value, limit))
}

// NewErrInvalidLogicVersionRange formats ErrInvalidLogicVersionRange
func NewErrInvalidLogicVersionRange(minVersion, maxVersion int) error {
	return NewValidationError("ActiveLogicVersionRange", fmt.Errorf("%w: min %d is greater than max %d", ErrInvalidLogicVersionRange, minVersion, maxVersion))
}

// NewErrGameTimeOffsetDecrease formats ErrGameTimeOffsetDecrease
func NewErrGameTimeOffsetDecrease(current, requested fmt.Stringer) error {
	return NewValidationError("GameTimeOffset", fmt.Errorf("%w: requested %s is below current %s", ErrGameTimeOffsetDecrease, requested, current))
}

// NewErrExperimentNotFound formats ErrExperimentNotFound
func NewErrExperimentNotFound(experimentID string) error {
	return NewValidationError("ExperimentID", fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID))
}

// NewErrInvalidExperimentChange formats ErrInvalidExperimentChange
func NewErrInvalidExperimentChange(field, reason string) error {
	return NewValidationError(field, fmt.Errorf("%w: %s", ErrInvalidExperimentChange, reason))
}

// NewErrSupportedVersionRollback formats ErrSupportedVersionRollback
func NewErrSupportedVersionRollback(previous, current int) error {
	return fmt.Errorf("%w: build supports up to %d but a previous build supported %d", ErrSupportedVersionRollback, current, previous)
}

// NewErrUnsupportedSchemaVersion formats ErrUnsupportedSchemaVersion
func NewErrUnsupportedSchemaVersion(version, oldest, current int) error {
	return fmt.Errorf("%w: %d (supported %d..%d)", ErrUnsupportedSchemaVersion, version, oldest, current)
}

// NewErrUnhandledMessage wraps ErrUnhandled
func NewErrUnhandledMessage(msg any) error {
	return fmt.Errorf("%w: %T", ErrUnhandled, msg)
}

// NewErrConfigResolution wraps ErrConfigResolution
func NewErrConfigResolution(err error) error {
	return errors.Join(ErrConfigResolution, err)
}

// ValidationError is returned to the caller of a mutation whose request was rejected.
// The Aggregate is left unchanged.
type ValidationError struct {
	field string
	err   error
}

var _ error = (*ValidationError)(nil)

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{field: field, err: err}
}

// Field returns the name of the offending field or bound
func (e *ValidationError) Field() string {
	return e.field
}

// Error implements the standard error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.field, e.err.Error())
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.err
}

// PanicError defines the panic error
// wrapping the underlying error
type PanicError struct {
	err error
}

var _ error = (*PanicError)(nil)

// NewPanicError creates an instance of PanicError
func NewPanicError(err error) *PanicError {
	return &PanicError{err}
}

// Error implements the standard error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.err)
}

// Unwrap returns the underlying error
func (e *PanicError) Unwrap() error {
	return e.err
}

// InternalError defines an error that is explicit to the application
type InternalError struct {
	err error
}

var _ error = (*InternalError)(nil)

// NewInternalError returns an instance of InternalError
func NewInternalError(err error) *InternalError {
	return &InternalError{
		err: fmt.Errorf("internal error: %w", err),
	}
}

// Error implements the standard error interface
func (i *InternalError) Error() string {
	return i.err.Error()
}

// Unwrap returns the underlying error
func (i *InternalError) Unwrap() error {
	return i.err
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
