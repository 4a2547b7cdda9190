package warplog

import (
	"sync"

	"go.uber.org/zap"
)

// Entry is one recorded log call, captured by Recorder for test assertions.
type Entry struct {
	Level  string
	Msg    string
	Fields []zap.Field
}

type recorderState struct {
	mu      sync.Mutex
	entries []Entry
}

// Recorder is a Logger that appends every call to an in-memory slice
// instead of discarding or emitting it, so engine tests can assert on
// specific warnings (e.g. "the tick aborted, and it logged why") without
// depending on zap's own test observer machinery. Loggers derived via With
// share the same underlying entry slice as their parent.
type Recorder struct {
	state  *recorderState
	prefix []zap.Field
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{state: &recorderState{}}
}

func (r *Recorder) record(level, msg string, fields []zap.Field) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	all := make([]zap.Field, 0, len(r.prefix)+len(fields))
	all = append(all, r.prefix...)
	all = append(all, fields...)
	r.state.entries = append(r.state.entries, Entry{Level: level, Msg: msg, Fields: all})
}

func (r *Recorder) Debug(msg string, fields ...zap.Field) { r.record("debug", msg, fields) }
func (r *Recorder) Info(msg string, fields ...zap.Field)  { r.record("info", msg, fields) }
func (r *Recorder) Warn(msg string, fields ...zap.Field)  { r.record("warn", msg, fields) }
func (r *Recorder) Error(msg string, fields ...zap.Field) { r.record("error", msg, fields) }
func (r *Recorder) Fatal(msg string, fields ...zap.Field) { r.record("fatal", msg, fields) }

func (r *Recorder) With(fields ...zap.Field) Logger {
	return &Recorder{
		state:  r.state,
		prefix: append(append([]zap.Field(nil), r.prefix...), fields...),
	}
}

// Entries returns a snapshot of every call recorded so far, across this
// Recorder and every logger derived from it via With.
func (r *Recorder) Entries() []Entry {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return append([]Entry(nil), r.state.entries...)
}
