package log

import "fmt"

// callerInfo holds the resolved source location of a log call site.
// Instances are cached by program counter in GameLogger.callerCache since
// runtime.Caller/FuncForPC are comparatively expensive.
type callerInfo struct {
	file     string
	function string
	line     int
}

func newCallerInfo(file, function string, line int) *callerInfo {
	return &callerInfo{file: file, function: function, line: line}
}

func (c *callerInfo) String() string {
	if c == nil {
		return _UnknownCallerInfo.String()
	}
	return fmt.Sprintf("%s:%d:%s", c.file, c.line, c.function)
}

var _UnknownCallerInfo = &callerInfo{file: "unknown", function: "unknown", line: 0}
