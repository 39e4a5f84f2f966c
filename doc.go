// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package beanslog is a configuration layer on top of the hclog structured
// logging engine. It loads a YAML or JSON configuration, registers console
// and rotating file handlers, redirects the standard library log and slog
// facilities into the same pipeline and exposes a process-wide logger plus a
// Fiber HTTP access log middleware.
package beanslog
