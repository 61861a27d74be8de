// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eventstore

import (
	"errors"
	"fmt"
	"time"
)

// ConcurrencyConflictError is returned when an optimistic write loses: an
// ETag/version precondition failed or the document hash chain broke. Callers
// recover by reloading the document and reapplying their command.
type ConcurrencyConflictError struct {
	Key             string
	ExpectedVersion string
	ActualVersion   string
}

func (e ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %q: expected version %q, actual %q",
		e.Key, e.ExpectedVersion, e.ActualVersion)
}

// IsConcurrencyConflict reports whether err is a ConcurrencyConflictError.
func IsConcurrencyConflict(err error) bool {
	var cce ConcurrencyConflictError
	return errors.As(err, &cce)
}

// StreamClosedError is returned when an append targets a stream whose tail
// event is ClosedEventType. Terminal; callers follow the continuation stream.
type StreamClosedError struct {
	StreamID string
}

func (e StreamClosedError) Error() string {
	return fmt.Sprintf("event stream %q is closed", e.StreamID)
}

// IsStreamClosed reports whether err is a StreamClosedError.
func IsStreamClosed(err error) bool {
	var sce StreamClosedError
	return errors.As(err, &sce)
}

// DocumentNotFoundError is returned by document reads when no document exists
// for the requested object.
type DocumentNotFoundError struct {
	ObjectName string
	ObjectID   string
}

func (e DocumentNotFoundError) Error() string {
	return fmt.Sprintf("no document found for %s/%s", e.ObjectName, e.ObjectID)
}

// IsDocumentNotFound reports whether err is a DocumentNotFoundError.
func IsDocumentNotFound(err error) bool {
	var dnf DocumentNotFoundError
	return errors.As(err, &dnf)
}

// ContainerNotFoundError is returned when the substrate namespace (a blob
// container or a table) is missing. Fatal to the call; operator-actionable.
type ContainerNotFoundError struct {
	Container string
}

func (e ContainerNotFoundError) Error() string {
	return fmt.Sprintf("container or table %q does not exist", e.Container)
}

// IsContainerNotFound reports whether err is a ContainerNotFoundError.
func IsContainerNotFound(err error) bool {
	var cnf ContainerNotFoundError
	return errors.As(err, &cnf)
}

// CorruptPayloadError indicates a large payload could not be reassembled:
// a continuation chunk is missing or decompression failed. Fatal.
type CorruptPayloadError struct {
	StreamID     string
	EventVersion int
	Reason       string
}

func (e CorruptPayloadError) Error() string {
	return fmt.Sprintf("corrupt payload for stream %q version %d: %s",
		e.StreamID, e.EventVersion, e.Reason)
}

// IsCorruptPayload reports whether err is a CorruptPayloadError.
func IsCorruptPayload(err error) bool {
	var cpe CorruptPayloadError
	return errors.As(err, &cpe)
}

// InvalidArgumentError is returned for caller mistakes: empty event slices,
// missing stream identifiers, page sizes below 1.
type InvalidArgumentError struct {
	Name   string
	Reason string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Name, e.Reason)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var iae InvalidArgumentError
	return errors.As(err, &iae)
}

// InvalidTokenError is returned by the projection-status coordinator when a
// rebuild transition presents a token that does not hold the lease, or one
// that has expired.
type InvalidTokenError struct {
	ProjectionName string
	ObjectID       string
	Reason         string
}

func (e InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid rebuild token for %s/%s: %s",
		e.ProjectionName, e.ObjectID, e.Reason)
}

// IsInvalidToken reports whether err is an InvalidTokenError or a
// TokenExpiredError; both mean the caller no longer holds the lease.
func IsInvalidToken(err error) bool {
	var ite InvalidTokenError
	if errors.As(err, &ite) {
		return true
	}
	return IsTokenExpired(err)
}

// TokenExpiredError is returned when a rebuild transition presents a token
// whose lease has lapsed.
type TokenExpiredError struct {
	ProjectionName string
	ObjectID       string
	ExpiredAt      time.Time
}

func (e TokenExpiredError) Error() string {
	return fmt.Sprintf("rebuild token for %s/%s expired at %s",
		e.ProjectionName, e.ObjectID, e.ExpiredAt.Format(time.RFC3339))
}

// IsTokenExpired reports whether err is a TokenExpiredError.
func IsTokenExpired(err error) bool {
	var tee TokenExpiredError
	return errors.As(err, &tee)
}
