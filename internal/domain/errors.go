/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
    "context"
    "errors"
    "fmt"
)

var (
    ErrUpstreamAuth       = errors.New("upstream: authentication failed")
    ErrUpstreamPermission = errors.New("upstream: permission denied")
    ErrUpstreamNotFound   = errors.New("upstream: not found")
    ErrUpstreamServer     = errors.New("upstream: server error")
    ErrUnsupported        = errors.New("upstream: unsupported request")
    ErrTransport          = errors.New("mail: transport failure")
    ErrCacheCorrupt       = errors.New("cache: unreadable record")
    ErrNoRecipients       = errors.New("report: no recipients")
    ErrRunInProgress      = errors.New("report: run already in progress")
)

// UpstreamError is a classified failure of a call to the issue tracker.
type UpstreamError struct {
    Kind   error
    Status int
    Method string
    Path   string
    Body   string
}

func (e *UpstreamError) Error() string {
    if e.Body == "" { return fmt.Sprintf("%v: %s %s status=%d", e.Kind, e.Method, e.Path, e.Status) }
    return fmt.Sprintf("%v: %s %s status=%d body=%s", e.Kind, e.Method, e.Path, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Kind }

// KindForStatus maps an HTTP status code to its error kind; nil for success codes.
func KindForStatus(status int) error {
    switch {
    case status < 300:
        return nil
    case status == 401:
        return ErrUpstreamAuth
    case status == 403:
        return ErrUpstreamPermission
    case status == 404:
        return ErrUpstreamNotFound
    case status == 405 || status == 422:
        return ErrUnsupported
    case status >= 500 || status == 429:
        return ErrUpstreamServer
    default:
        return ErrUnsupported
    }
}

// IsRecoverable reports whether err only affects a single project and the
// run can go on without it.
func IsRecoverable(err error) bool {
    if err == nil { return true }
    if errors.Is(err, ErrUpstreamAuth) || errors.Is(err, context.Canceled) { return false }
    var ue *UpstreamError
    if errors.As(err, &ue) { return true }
    return errors.Is(err, ErrUpstreamPermission) ||
        errors.Is(err, ErrUpstreamNotFound) ||
        errors.Is(err, ErrUpstreamServer) ||
        errors.Is(err, ErrUnsupported) ||
        errors.Is(err, context.DeadlineExceeded)
}

// IsAbort reports whether err must stop the whole report run.
func IsAbort(err error) bool { return err != nil && !IsRecoverable(err) }
