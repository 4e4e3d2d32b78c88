//go:build integration

package host_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dev/bravebird/pageload-verifier/pkg/host"
	"dev/bravebird/pageload-verifier/pkg/models"
)

type recordingListener struct {
	messages []string
	statuses []models.LoadStatus
	// console messages seen after the load outcome
	late int
}

func (r *recordingListener) OnConsoleMessage(msg string) {
	if len(r.statuses) > 0 {
		r.late++
	}
	r.messages = append(r.messages, msg)
}

func (r *recordingListener) OnLoadFinished(status models.LoadStatus) {
	r.statuses = append(r.statuses, status)
}

func launch(t *testing.T) *host.RodHost {
	t.Helper()

	h := host.NewRodHost(host.RodConfig{
		Bin:       os.Getenv("CHROME_BIN"),
		Headless:  true,
		NoSandbox: true,
		Timeout:   20 * time.Second,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, h.Launch(ctx), "Failed to start browser")

	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Logf("Close error: %v", err)
		}
	})
	return h
}

func TestRodHost_ConsoleBeforeLoad_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><script>
			console.log("loading");
			console.log("Ready");
			console.log("count", 3);
		</script></body></html>`)
	}))
	defer ts.Close()

	h := launch(t)
	rec := &recordingListener{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, h.Open(ctx, ts.URL, rec))
	require.Equal(t, []models.LoadStatus{models.LoadSuccess}, rec.statuses)
	require.Equal(t, []string{"loading", "Ready", "count 3"}, rec.messages)
	require.Zero(t, rec.late)
}

func TestRodHost_MissingFileFails_Integration(t *testing.T) {
	h := launch(t)
	rec := &recordingListener{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	missing := "file://" + t.TempDir() + "/missing.html"
	require.NoError(t, h.Open(ctx, missing, rec))
	require.Equal(t, []models.LoadStatus{models.LoadFail}, rec.statuses)
}
