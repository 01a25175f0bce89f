// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package voteerr defines the typed errors shared across ballotbox. Each
// error has a stable Code for API responses and a Kind for callers.
package voteerr
