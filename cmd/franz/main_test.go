// File: cmd/franz/main_test.go
package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/franz/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestRunExitCodes(t *testing.T) {
	defer resetMocks()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"shutdown by signal", context.Canceled, 0},
		{"wrapped cancellation", errors.Join(errors.New("stopping"), context.Canceled), 0},
		{"failure", errors.New("bind: address already in use"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			execute = func(context.Context) error { return tc.err }
			assert.Equal(t, tc.want, run(context.Background()))
		})
	}
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes the panic log", func(t *testing.T) {
		var written []byte
		var path string
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			path, written = name, data
			return nil
		}
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("engine exploded")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(written), "panic: engine exploded")
		assert.Contains(t, string(written), "goroutine")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("log write failure still exits", func(t *testing.T) {
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		exitCode := -1
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("again")
		}()
		assert.Equal(t, 2, exitCode)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		osExit = func(int) { require.FailNow(t, "exit must not be called") }
		func() {
			defer handlePanic()
		}()
	})
}
