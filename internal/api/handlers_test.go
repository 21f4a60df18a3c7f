package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serialscope/serialscope/internal/domain"
)

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0", Baud: 9600})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	decodeResponse(t, w, &resp)

	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, 1, resp.ActivePorts)
	assert.Equal(t, "v1", resp.APIVersion)
	assert.Equal(t, "serialscope.yaml", resp.ConfigFile)
}

func TestAddPort(t *testing.T) {
	env := newTestEnv(t)

	t.Run("success", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{
			Port:     "ttyV0",
			Baud:     9600,
			Keywords: []string{"ERROR"},
		})
		assert.Equal(t, http.StatusOK, w.Code)

		var resp SuccessResponse
		decodeResponse(t, w, &resp)
		assert.True(t, resp.Success)

		require.NotNil(t, env.opener.port("ttyV0"))
	})

	t.Run("duplicate port conflicts", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeSessionExists, resp.Code)
	})

	t.Run("open failure is reported", func(t *testing.T) {
		env.opener.failWith("ttyBAD", domain.ErrPortNotOpen)

		w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyBAD"})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodePortNotOpen, resp.Code)
	})

	t.Run("invalid regex rejected", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{
			Port:  "ttyV9",
			Regex: []string{"[unclosed"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeInvalidPattern, resp.Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/ports", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		env.server.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeInvalidRequest, resp.Code)
	})

	t.Run("dump auto start", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{
			Port: "ttyDUMP",
			Dump: &DumpOptions{AutoStart: true},
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, "GET", "/api/v1/ports", nil)
		var list PortListResponse
		decodeResponse(t, w, &list)

		var found bool
		for _, p := range list.Ports {
			if p.Port == "ttyDUMP" {
				found = true
				assert.True(t, p.DumpActive)
				assert.NotEmpty(t, p.DumpFile)
			}
		}
		assert.True(t, found)
	})
}

func TestGetPorts_SortedByName(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{"ttyB", "ttyA", "ttyC"} {
		w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: name})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, "GET", "/api/v1/ports", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp PortListResponse
	decodeResponse(t, w, &resp)

	require.Len(t, resp.Ports, 3)
	assert.Equal(t, "ttyA", resp.Ports[0].Port)
	assert.Equal(t, "ttyB", resp.Ports[1].Port)
	assert.Equal(t, "ttyC", resp.Ports[2].Port)
	for _, p := range resp.Ports {
		assert.Equal(t, "running", p.State)
		assert.False(t, p.Recording)
	}
}

func TestBatchAddPorts(t *testing.T) {
	env := newTestEnv(t)
	env.opener.failWith("ttyBAD", domain.ErrPortNotOpen)

	w := env.do(t, "POST", "/api/v1/ports/batch", BatchAddRequest{
		Ports: []AddPortRequest{
			{Port: "ttyA", Baud: 9600},
			{Port: "ttyB"},
			{Port: "ttyBAD"},
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp BatchResponse
	decodeResponse(t, w, &resp)

	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results["ttyA"].Success)
	assert.True(t, resp.Results["ttyB"].Success)
	assert.False(t, resp.Results["ttyBAD"].Success)
	assert.Equal(t, domain.ErrCodePortNotOpen, resp.Results["ttyBAD"].Code)
	assert.NotEmpty(t, resp.Results["ttyBAD"].Error)
}

func TestRemovePort(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0"})
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("removes the session", func(t *testing.T) {
		w := env.do(t, "DELETE", "/api/v1/ports?port=ttyV0", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, "GET", "/api/v1/ports", nil)
		var resp PortListResponse
		decodeResponse(t, w, &resp)
		assert.Empty(t, resp.Ports)
	})

	t.Run("missing port parameter", func(t *testing.T) {
		w := env.do(t, "DELETE", "/api/v1/ports", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeEmptyPortName, resp.Code)
	})

	t.Run("unknown port", func(t *testing.T) {
		w := env.do(t, "DELETE", "/api/v1/ports?port=ttyNONE", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeSessionNotFound, resp.Code)
	})
}

func TestSendData(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0"})
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("writes to the device", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/ports/send", SendRequest{Port: "ttyV0", Data: "AT\r\n"})
		assert.Equal(t, http.StatusOK, w.Code)

		writes := env.opener.port("ttyV0").writes()
		require.Len(t, writes, 1)
		assert.Equal(t, []byte("AT\r\n"), writes[0])
	})

	t.Run("unknown port", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/ports/send", SendRequest{Port: "ttyNONE", Data: "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUpdateFilters(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0", Keywords: []string{"old"}})
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("replaces rules live", func(t *testing.T) {
		w := env.do(t, "PUT", "/api/v1/ports/filters", UpdateFiltersRequest{
			Port:     "ttyV0",
			Keywords: []string{"ERROR", "WARN"},
			Regex:    []string{`^E\d+`},
		})
		assert.Equal(t, http.StatusOK, w.Code)

		keywords, patterns, err := env.registry.Rules("ttyV0")
		require.NoError(t, err)
		assert.Equal(t, []string{"ERROR", "WARN"}, keywords)
		assert.Equal(t, []string{`^E\d+`}, patterns)
	})

	t.Run("invalid regex rejected", func(t *testing.T) {
		w := env.do(t, "PUT", "/api/v1/ports/filters", UpdateFiltersRequest{
			Port:  "ttyV0",
			Regex: []string{"[unclosed"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeInvalidPattern, resp.Code)
	})

	t.Run("unknown port", func(t *testing.T) {
		w := env.do(t, "PUT", "/api/v1/ports/filters", UpdateFiltersRequest{Port: "ttyNONE"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestChangeBaud(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{"ttyA", "ttyB"} {
		w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: name, Baud: 9600})
		require.Equal(t, http.StatusOK, w.Code)
	}

	t.Run("single port", func(t *testing.T) {
		w := env.do(t, "PUT", "/api/v1/ports/baud", BaudRequest{Port: "ttyA", Baud: 57600})
		assert.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, []int{57600}, env.opener.port("ttyA").baudCalls())
		assert.Empty(t, env.opener.port("ttyB").baudCalls())
	})

	t.Run("all ports", func(t *testing.T) {
		w := env.do(t, "PUT", "/api/v1/ports/baud", BaudRequest{Baud: 115200})
		assert.Equal(t, http.StatusOK, w.Code)

		var resp BatchResponse
		decodeResponse(t, w, &resp)
		require.Len(t, resp.Results, 2)
		assert.True(t, resp.Results["ttyA"].Success)
		assert.True(t, resp.Results["ttyB"].Success)
	})

	t.Run("invalid rate", func(t *testing.T) {
		w := env.do(t, "PUT", "/api/v1/ports/baud", BaudRequest{Port: "ttyA", Baud: -1})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeInvalidBaudRate, resp.Code)
	})
}

func TestDumpControl(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0"})
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("start", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/dump/start", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusOK, w.Code)

		st, err := env.registry.Stats("ttyV0")
		require.NoError(t, err)
		assert.True(t, st.DumpActive)
	})

	t.Run("double start conflicts", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/dump/start", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeDumpActive, resp.Code)
	})

	t.Run("stop", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/dump/stop", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusOK, w.Code)

		st, err := env.registry.Stats("ttyV0")
		require.NoError(t, err)
		assert.False(t, st.DumpActive)
	})

	t.Run("stop when inactive conflicts", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/dump/stop", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeDumpNotActive, resp.Code)
	})
}

func TestGetLines(t *testing.T) {
	env := newTestEnv(t)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		env.feed.Append(domain.LineEvent{
			Port:      "ttyA",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Line:      "boot stage",
		})
	}
	env.feed.Append(domain.LineEvent{Port: "ttyB", Timestamp: base, Line: "other"})

	t.Run("all lines", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/lines", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp LinesResponse
		decodeResponse(t, w, &resp)
		assert.Len(t, resp.Lines, 6)
		assert.Equal(t, 6, resp.TotalCount)
	})

	t.Run("port filter with limit", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/lines?port=ttyA&lines=3", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp LinesResponse
		decodeResponse(t, w, &resp)
		assert.Len(t, resp.Lines, 3)
		assert.Equal(t, 3, resp.FilteredCount)
		assert.Equal(t, 5, resp.TotalCount)
		for _, line := range resp.Lines {
			assert.Equal(t, "ttyA", line.Port)
		}
	})

	t.Run("pattern filter", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/lines?pattern=other", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp LinesResponse
		decodeResponse(t, w, &resp)
		require.Len(t, resp.Lines, 1)
		assert.Equal(t, "other", resp.Lines[0].Line)
	})

	t.Run("invalid regex rejected", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/lines?pattern=[invalid&regex=true", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeInvalidPattern, resp.Code)
	})

	t.Run("invalid lines parameter uses default", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/lines?lines=invalid", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("huge lines parameter is capped", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/lines?lines=999999999", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0", Baud: 9600})
	require.Equal(t, http.StatusOK, w.Code)

	env.feed.Append(domain.LineEvent{Port: "ttyV0", Timestamp: time.Now(), Line: "one"})
	env.feed.Append(domain.LineEvent{Port: "ttyV0", Timestamp: time.Now(), Line: "two"})

	w = env.do(t, "GET", "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	decodeResponse(t, w, &resp)

	require.Contains(t, resp.Ports, "ttyV0")
	assert.Equal(t, 9600, resp.Ports["ttyV0"].BaudRate)
	assert.Equal(t, "running", resp.Ports["ttyV0"].State)

	assert.Equal(t, 2, resp.Feed.BufferedEvents)
	assert.Equal(t, 100, resp.Feed.BufferSize)
}

func TestGetAvailablePorts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/ports/available", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp AvailablePortsResponse
	decodeResponse(t, w, &resp)
	// Contents depend on the host; the endpoint just has to answer.
}

func TestRecordingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/ports", AddPortRequest{Port: "ttyV0", Keywords: []string{"ERROR"}})
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("start on unknown port", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/record/start", PortRequest{Port: "ttyNONE"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("start", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/record/start", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, env.recorder.Active("ttyV0"))

		// The ports listing reflects the active recording
		w = env.do(t, "GET", "/api/v1/ports", nil)
		var list PortListResponse
		decodeResponse(t, w, &list)
		require.Len(t, list.Ports, 1)
		assert.True(t, list.Ports[0].Recording)
	})

	t.Run("double start conflicts", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/record/start", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeRecordingActive, resp.Code)
	})

	t.Run("sends are captured while recording", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/ports/send", SendRequest{Port: "ttyV0", Data: "PING\n"})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("stop returns the saved path", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/record/stop", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusOK, w.Code)

		var resp RecordStopResponse
		decodeResponse(t, w, &resp)
		assert.True(t, resp.Success)
		require.NotEmpty(t, resp.Path)

		_, err := os.Stat(resp.Path)
		require.NoError(t, err)
		assert.False(t, env.recorder.Active("ttyV0"))
	})

	t.Run("stop without recording conflicts", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/record/stop", PortRequest{Port: "ttyV0"})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp ErrorResponse
		decodeResponse(t, w, &resp)
		assert.Equal(t, domain.ErrCodeRecordingNotActive, resp.Code)
	})
}

func TestShutdownHandler(t *testing.T) {
	env := newTestEnv(t)

	done := make(chan struct{})
	handlers := NewHandlers(env.registry, env.feed, env.recorder, "serialscope.yaml", func() {
		close(done)
	}, quietLogger())

	req := httptest.NewRequest("POST", "/api/v1/shutdown", nil)
	w := httptest.NewRecorder()
	handlers.Shutdown(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp SuccessResponse
	decodeResponse(t, w, &resp)
	assert.True(t, resp.Success)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown function was not invoked")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
