package log

import (
	"bytes"
	"strconv"
	"time"
)

// LogEvent is a chainable, single-use builder for one log line. Instances
// come from GameLogger's sync.Pool and are returned to it once Msg is
// called; callers must not retain a LogEvent past Msg.
//
// A nil *LogEvent is valid to call methods on (every method short-circuits),
// which is what lets `logger.Debug()` return nil when debug logging is
// disabled without every call site needing a nil check before chaining.
type LogEvent struct {
	buf    bytes.Buffer
	level  Level
	logger *GameLogger
	first  bool
}

func newEvent(logger *GameLogger) *LogEvent {
	e := &LogEvent{logger: logger}
	e.Reset()
	return e
}

// Reset clears the event back to an empty JSON object, ready for reuse from
// the pool.
func (e *LogEvent) Reset() {
	e.buf.Reset()
	e.buf.WriteByte('{')
	e.first = true
	e.level = InfoLevel
}

func (e *LogEvent) writeKey(key string) {
	if !e.first {
		e.buf.WriteByte(',')
	}
	e.first = false
	e.buf.WriteByte('"')
	e.buf.WriteString(key)
	e.buf.WriteString("\":")
}

// Str adds a string field.
func (e *LogEvent) Str(key, val string) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteByte('"')
	e.buf.WriteString(val)
	e.buf.WriteByte('"')
	return e
}

// Strs adds a field whose value is a JSON array of strings.
func (e *LogEvent) Strs(key string, vals []string) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteByte('"')
		e.buf.WriteString(v)
		e.buf.WriteByte('"')
	}
	e.buf.WriteByte(']')
	return e
}

// Int adds an integer field.
func (e *LogEvent) Int(key string, val int) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteString(strconv.Itoa(val))
	return e
}

// Int32 adds an int32 field.
func (e *LogEvent) Int32(key string, val int32) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	return e
}

// Int64 adds an int64 field.
func (e *LogEvent) Int64(key string, val int64) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteString(strconv.FormatInt(val, 10))
	return e
}

// Uint32 adds a uint32 field.
func (e *LogEvent) Uint32(key string, val uint32) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	return e
}

// Uint64 adds a uint64 field.
func (e *LogEvent) Uint64(key string, val uint64) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteString(strconv.FormatUint(val, 10))
	return e
}

// Bool adds a boolean field.
func (e *LogEvent) Bool(key string, val bool) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteString(strconv.FormatBool(val))
	return e
}

// Float64 adds a float field.
func (e *LogEvent) Float64(key string, val float64) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	return e
}

// Dur adds a duration field, rendered as its string form (e.g. "1.5s").
func (e *LogEvent) Dur(key string, d time.Duration) *LogEvent {
	return e.Str(key, d.String())
}

// Time adds a timestamp field in RFC3339Nano form.
func (e *LogEvent) Time(key string, t *time.Time) *LogEvent {
	if e == nil {
		return nil
	}
	e.writeKey(key)
	e.buf.WriteByte('"')
	e.buf.WriteString(t.Format(time.RFC3339Nano))
	e.buf.WriteByte('"')
	return e
}

// Err adds the error under the "error" key. A nil error is a no-op so that
// `.Err(err)` is always safe to chain regardless of whether err is set.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	return e.Str("error", err.Error())
}

// Msg finalizes the event with the given message, hands it to the owning
// logger's appenders, and releases it back to the pool. Calling Msg on a
// nil event (i.e. the level was filtered out) is a no-op.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.Str("msg", msg)
	e.buf.WriteByte('}')
	e.buf.WriteByte('\n')
	if e.logger != nil {
		e.logger.OnEventEnd(e)
	}
}
