// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package verification lets a voter confirm a receipt code was recorded.
// Lookups return only the election name and cast time; a code that does not
// resolve is reported the same way as a malformed one.
package verification
