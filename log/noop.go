package warplog

import "go.uber.org/zap"

// noOp is a Logger that discards everything, modeled on the teacher's
// log/nolog.go NoLog — used where a Logger is required but the caller (most
// test code, and any embedder that doesn't want engine logs) has nowhere to
// send it.
type noOp struct{}

// NewNoOp returns a Logger that discards every call.
func NewNoOp() Logger { return noOp{} }

func (noOp) Debug(string, ...zap.Field) {}
func (noOp) Info(string, ...zap.Field)  {}
func (noOp) Warn(string, ...zap.Field)  {}
func (noOp) Error(string, ...zap.Field) {}
func (noOp) Fatal(string, ...zap.Field) {}
func (n noOp) With(...zap.Field) Logger { return n }
