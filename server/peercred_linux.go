// Copyright 2026 The Unhidra Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials returns the pid and uid of the process on the other
// end of a Unix socket connection, via SO_PEERCRED. Used only for
// logging — the socket's 0600 permission bits are the access control.
func peerCredentials(conn net.Conn) (pid, uid int32, err error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, 0, fmt.Errorf("not a unix socket connection: %T", conn)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}

	var ucred *unix.Ucred
	var credErr error
	controlErr := raw.Control(func(fd uintptr) {
		ucred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return 0, 0, controlErr
	}
	if credErr != nil {
		return 0, 0, credErr
	}
	return ucred.Pid, int32(ucred.Uid), nil
}
