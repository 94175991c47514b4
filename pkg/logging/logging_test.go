package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_SilentProducesNoOutput(t *testing.T) {
	var buf bytes.Buffer
	sink := New(false, &buf)

	sink.Debugf("debug %d", 1)
	sink.Infof("info %d", 2)
	sink.Warnf("warn %d", 3)
	sink.Errorf("error %d", 4)

	assert.Empty(t, buf.String(), "verbose=false must produce no output")
}

func TestNew_VerboseWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	sink := New(true, &buf)

	sink.Infof("hello %s", "world")

	assert.Contains(t, buf.String(), "hello world")
}

func TestNoop_DoesNotPanic(t *testing.T) {
	sink := Noop()
	assert.NotPanics(t, func() {
		sink.Debugf("x")
		sink.Infof("x")
		sink.Warnf("x")
		sink.Errorf("x")
	})
}
