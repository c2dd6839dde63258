package log

import "fmt"

// LevelChangeEntry pins a specific call site to a log level regardless of
// the logger's global minimum, letting a single noisy line be dialed up (or
// down) without touching everything else.
type LevelChangeEntry struct {
	FileName string `mapstructure:"file"`
	LineNum  int    `mapstructure:"line"`
	LogLevel int    `mapstructure:"level"`
}

// levelChange indexes a LogCfg's LevelChange entries by file:line for O(1)
// lookup from the hot logging path.
type levelChange struct {
	entries map[string]Level
}

func newLevelChange(entries []LevelChangeEntry) *levelChange {
	lc := &levelChange{entries: make(map[string]Level, len(entries))}
	for _, e := range entries {
		lc.entries[key(e.FileName, e.LineNum)] = Level(e.LogLevel)
	}
	return lc
}

func key(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}

func (lc *levelChange) Empty() bool {
	return lc == nil || len(lc.entries) == 0
}

// GetLevel returns the overridden level for file:line, or fallback if no
// override is registered for that call site.
func (lc *levelChange) GetLevel(file string, line int, fallback Level) Level {
	if lc == nil {
		return fallback
	}
	if lv, ok := lc.entries[key(file, line)]; ok {
		return lv
	}
	return fallback
}
