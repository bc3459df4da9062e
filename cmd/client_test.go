package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/franz/api/schemas"
)

// lastRequest holds "METHOD /path body" of the most recent request.
type lastRequest struct {
	mu  sync.Mutex
	val string
}

func (l *lastRequest) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val
}

// fakeSyncServer records the last request and replies with status and body.
func fakeSyncServer(t *testing.T, status int, body string) (*httptest.Server, *lastRequest) {
	t.Helper()
	got := &lastRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		got.mu.Lock()
		got.val = r.Method + " " + r.URL.Path + " " + string(data)
		got.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestInjectCmd(t *testing.T) {
	t.Run("argument", func(t *testing.T) {
		resetForTest(t)
		srv, got := fakeSyncServer(t, http.StatusOK, `{"ok":true}`)

		out, err := executeCommand(t, "inject", "--url", srv.URL, `{"observation":"hi"}`)
		require.NoError(t, err)
		assert.Equal(t, `POST /inject {"vlm_text":"{\"observation\":\"hi\"}"}`, got.String())
		assert.Contains(t, out, "Injected 20 bytes.")
	})

	t.Run("file", func(t *testing.T) {
		resetForTest(t)
		appFS = afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(appFS, "/reply.json", []byte("from file"), 0o644))
		srv, got := fakeSyncServer(t, http.StatusOK, `{"ok":true}`)

		_, err := executeCommand(t, "inject", "--url", srv.URL, "--file", "/reply.json")
		require.NoError(t, err)
		assert.Equal(t, `POST /inject {"vlm_text":"from file"}`, got.String())
	})

	t.Run("stdin", func(t *testing.T) {
		resetForTest(t)
		srv, got := fakeSyncServer(t, http.StatusOK, `{"ok":true}`)

		root := NewRootCommand()
		root.SetIn(strings.NewReader("piped text"))
		root.SetOut(io.Discard)
		root.SetArgs([]string{"inject", "--url", srv.URL, "-"})
		require.NoError(t, root.Execute())
		assert.Equal(t, `POST /inject {"vlm_text":"piped text"}`, got.String())
	})

	t.Run("server rejection", func(t *testing.T) {
		resetForTest(t)
		srv, _ := fakeSyncServer(t, http.StatusBadRequest, `{"ok":false,"err":"vlm_text empty"}`)

		_, err := executeCommand(t, "inject", "--url", srv.URL, "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server returned 400: vlm_text empty")
	})

	t.Run("local validation", func(t *testing.T) {
		resetForTest(t)
		for _, args := range [][]string{
			{"inject", "--url", "http://127.0.0.1:1"},
			{"inject", "--url", "http://127.0.0.1:1", "   "},
			{"inject", "--url", "http://127.0.0.1:1", "--file", "x", "text"},
		} {
			_, err := executeCommand(t, args...)
			assert.Error(t, err, "args %v", args)
		}
	})
}

func TestStateCmd(t *testing.T) {
	two, three := 2, 3
	failure := "chat completion failed: 503"
	snap := schemas.Snapshot{
		Phase:        schemas.PhaseVLMError,
		Error:        &failure,
		Turn:         4,
		MsgID:        4,
		PendingSeq:   4,
		AnnotatedSeq: 4,
		RawB64:       strings.Repeat("Z", 64),
		Actions:      []schemas.Action{{Name: schemas.ActionDrag, X1: 1, Y1: 1, X2: &two, Y2: &three}},
		Observation:  "a dialog",
	}
	body, err := jsonAPI.MarshalToString(snap)
	require.NoError(t, err)

	t.Run("summary", func(t *testing.T) {
		resetForTest(t)
		srv, got := fakeSyncServer(t, http.StatusOK, body)

		out, err := executeCommand(t, "state", "--url", srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "GET /state ", got.String())
		assert.Contains(t, out, "vlm_error")
		assert.Contains(t, out, "chat completion failed: 503")
		assert.Contains(t, out, "idle until the next injection")
		assert.Contains(t, out, "64 bytes (base64)")
		assert.Contains(t, out, "drag (1,1) -> (2,3)")
		assert.NotContains(t, out, "ZZZZ")
	})

	t.Run("json", func(t *testing.T) {
		resetForTest(t)
		srv, _ := fakeSyncServer(t, http.StatusOK, body)

		out, err := executeCommand(t, "state", "--url", srv.URL, "--json")
		require.NoError(t, err)
		var printed schemas.Snapshot
		require.NoError(t, jsonAPI.UnmarshalFromString(out, &printed))
		assert.Empty(t, printed.RawB64)
		assert.Equal(t, 4, printed.Turn)
	})
}

func TestLogsCmd(t *testing.T) {
	resetForTest(t)
	path := filepath.Join(t.TempDir(), "franz.log")
	lines := []string{
		`{"level":"INFO","ts":"2026-01-01T00:00:00.000Z","logger":"franz.turn_engine","msg":"Inference complete.","turn":3}`,
		`{"level":"WARN","ts":"2026-01-01T00:00:01.000Z","logger":"franz.sync_server","msg":"Rejected annotation: invalid json.","error":"eof"}`,
		`not json at all`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	out, err := executeCommand(t, "logs", "--file", path, "--level", "warn")
	require.NoError(t, err)
	assert.NotContains(t, out, "Inference complete.")
	assert.Contains(t, out, "2026-01-01T00:00:01.000Z WARN franz.sync_server Rejected annotation: invalid json. error=eof")
	assert.Contains(t, out, "not json at all")

	out, err = executeCommand(t, "logs", "--file", path, "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, lines[0])

	_, err = executeCommand(t, "logs", "--file", filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}

func TestWriteLogLine_SortsFields(t *testing.T) {
	var buf bytes.Buffer
	writeLogLine(&buf, `{"msg":"m","level":"info","b":2,"a":1}`, 0, false)
	assert.Equal(t, "INFO m a=1 b=2\n", buf.String())
}
