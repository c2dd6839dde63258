package log

import "os"

// LogAppender receives finished log lines and is responsible for getting
// them to a destination (console, file, ...). Refresh flushes whatever is
// currently buffered without waiting for new writes.
type LogAppender interface {
	Write(p []byte) (int, error)
	Refresh()
}

// ConsoleAppender writes log lines to stdout.
type ConsoleAppender struct{}

func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (c *ConsoleAppender) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (c *ConsoleAppender) Refresh() {}
