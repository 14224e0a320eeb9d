package cli

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"poupanca/internal/log"
)

func TestFatalAfterRunsCleanupBeforeExit(t *testing.T) {
	var steps []string
	exit = func(code int) { steps = append(steps, "exit") }
	t.Cleanup(func() { exit = os.Exit })

	buf := &bytes.Buffer{}
	logger := log.New(log.Config{Format: "text", Output: buf})

	FatalAfter(logger, func() error {
		steps = append(steps, "cleanup")
		return errors.New("close failed")
	}, "Server error", errors.New("address in use"))

	assert.Equal(t, []string{"cleanup", "exit"}, steps)
	assert.Contains(t, buf.String(), "close failed")
	assert.Contains(t, buf.String(), "address in use")
}

func TestFatalExitsWithStatusOne(t *testing.T) {
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	Fatal(log.New(log.Config{Format: "text", Output: &bytes.Buffer{}}), "boom", errors.New("x"))
	assert.Equal(t, 1, code)
}
