// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package audit records security-relevant events in the audit_event table.
// Emitters never return errors to callers.
package audit
