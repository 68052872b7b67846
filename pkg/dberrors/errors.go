// Package dberrors carries the sentinel errors shared by the storage core.
package dberrors

import "errors"

var (
	ErrNotFound        = errors.New("autosharddb: not found")
	ErrClosed          = errors.New("autosharddb: closed")
	ErrInvalidArgument = errors.New("autosharddb: invalid argument")

	// ErrRecordDuplicated is raised by the create path when a remote peer
	// reports that the chosen cluster position already exists.
	ErrRecordDuplicated = errors.New("autosharddb: record duplicated")

	// ErrDistributedUnavailable is raised by commit/rollback: transactions
	// are not supported in a distributed environment.
	ErrDistributedUnavailable = errors.New("autosharddb: transactions not supported in distributed environment")

	// ErrRemoteRPC wraps any transport or remote-side fault from a peer RPC.
	ErrRemoteRPC = errors.New("autosharddb: remote rpc failed")
)
