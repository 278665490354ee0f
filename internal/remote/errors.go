/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remote

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies a remote failure by what the caller should do about it.
type Kind string

const (
	KindTransient           Kind = "transient"
	KindUnauthorized        Kind = "unauthorized"
	KindReadOnlyCredentials Kind = "read_only_credentials"
	KindMalformed           Kind = "malformed"
	KindRejected            Kind = "rejected"
)

var (
	// ErrTransient covers network failures, timeouts, 429 and 5xx responses. Safe to retry.
	ErrTransient = errors.New("remote store temporarily unavailable")
	// ErrUnauthorized means the credentials were refused for a read.
	ErrUnauthorized = errors.New("remote store rejected the credentials")
	// ErrReadOnlyCredentials means the credentials can read but may not write.
	ErrReadOnlyCredentials = errors.New("remote store credentials are read-only; reissue them with read/write permission")
	// ErrMalformed means the remote answered with a payload that could not be decoded.
	ErrMalformed = errors.New("remote store returned a malformed payload")
	// ErrRejected covers every other 4xx response.
	ErrRejected = errors.New("remote store rejected the request")
)

// Error is a classified remote failure.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.sentinel().Error(), e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.sentinel().Error(), msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the sentinel of its kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindTransient:
		return ErrTransient
	case KindUnauthorized:
		return ErrUnauthorized
	case KindReadOnlyCredentials:
		return ErrReadOnlyCredentials
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrRejected
	}
}

// KindOf returns the kind of a remote error, or "" for anything else.
func KindOf(err error) Kind {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Kind
	}
	return ""
}

// IsRetryable reports whether repeating the same request may succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// classifyStatus maps a non-2xx response to an error. A 401/403 on a write
// is reported as read-only credentials since reads with the same
// credentials already succeeded for the account to be syncing at all.
func classifyStatus(op string, status int, write bool, message string) *Error {
	e := &Error{Op: op, StatusCode: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if write {
			e.Kind = KindReadOnlyCredentials
		} else {
			e.Kind = KindUnauthorized
		}
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindRejected
	}
	return e
}
