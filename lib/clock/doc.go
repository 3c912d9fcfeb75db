// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Node components that depend on time — routing table TTL expiry,
// record re-announcement, metric snapshot timers, acknowledgement
// timeouts — accept a Clock instead of calling the time package
// directly. Production code injects Real(); tests inject Fake() and
// advance time deterministically with Advance.
package clock
