/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"context"
	"errors"
	"net/http"
)

// Error taxonomy shared across packages. Callers match with errors.Is.
var (
	// ErrValidation marks invalid parameters that could not be corrected locally.
	ErrValidation = errors.New("validation failed")
	// ErrExternal marks a failed call to the transform, search or persistence service.
	ErrExternal = errors.New("external service failure")
	// ErrReplay marks a corrupt or incompatible snapshot payload.
	ErrReplay = errors.New("snapshot replay failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	// ErrBusy is returned while a long-running operation holds the processing flag.
	ErrBusy = errors.New("operation in progress")
	// ErrBlocked marks an operation that conflicts with the current image state.
	ErrBlocked = errors.New("operation blocked")
	// ErrStale is returned when an async result arrives after its target went away.
	ErrStale    = errors.New("stale result discarded")
	ErrDisposed = errors.New("session disposed")
)

// StatusError carries the status of a non-2xx reply from an external service.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return e.Status }

// IsCallerFault reports whether err was caused by the caller rather than the service:
// a cancelled or expired context, or a 4xx reply other than 408 and 429. Circuit
// breakers do not count these as service failures.
func IsCallerFault(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 &&
			se.Code != http.StatusRequestTimeout && se.Code != http.StatusTooManyRequests
	}
	return false
}
