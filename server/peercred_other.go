// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package server

import (
	"errors"
	"net"
)

// peerCredentials is unavailable off Linux; sessions simply log
// without peer identity.
func peerCredentials(conn net.Conn) (pid, uid int32, err error) {
	return 0, 0, errors.New("peer credentials not supported on this platform")
}
