package model

import "errors"

var (
	// ErrInvalidAmount is returned for zero or malformed quantities.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance is returned when a token balance cannot cover a sale.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientFunds is returned when a value account or the vault is short.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotAuthorized is returned when the caller lacks the required role.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotDue is returned when the distribution trigger fires too early.
	ErrNotDue = errors.New("distribution not due")
	// ErrRequestAlreadyPending is returned while a randomness request is in flight.
	ErrRequestAlreadyPending = errors.New("randomness request already pending")
	// ErrUnrecognizedRequest marks stale or duplicate oracle callbacks.
	ErrUnrecognizedRequest = errors.New("unrecognized randomness request")
	// ErrInsufficientOracleFee is returned when the ledger cannot pay the oracle.
	ErrInsufficientOracleFee = errors.New("insufficient oracle fee balance")
	// ErrUnknownKey is returned by the oracle for an unregistered key id.
	ErrUnknownKey = errors.New("unknown oracle key")
	// ErrQueueFull is returned when the oracle cannot accept more requests.
	ErrQueueFull = errors.New("oracle request queue full")
	// ErrRejected is returned when a recipient refuses incoming value.
	ErrRejected = errors.New("transfer rejected by recipient")
)
