package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func TestStandardLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardWithOutput(&buf, LevelWarn)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	assert.Empty(t, buf.String())

	l.Warn("warn %d", 3)
	l.Error("error %d", 4)
	out := buf.String()
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "NONE", LevelNone.String())
	assert.Contains(t, Level(42).String(), "UNKNOWN")
}

func TestDefaultLogger(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	SetDefault(Nop{})
	// Must not panic.
	Debug("d")
	Info("i")
	Warn("w")
	Error("e")
	assert.Equal(t, Nop{}, Default())
}

func TestGologLevels(t *testing.T) {
	var buf bytes.Buffer
	gl := golog.New()
	gl.SetOutput(&buf)

	l := NewGolog(gl)
	l.SetLevel(LevelError)
	assert.Equal(t, LevelError, l.GetLevel())

	l.Info("hidden")
	l.Error("visible %s", "message")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible message")
}
