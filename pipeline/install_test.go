package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"mcpanel/download"
	"mcpanel/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestInstaller(t *testing.T) (*Installer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "mods")
	inst := NewInstaller(map[ItemKind]string{KindMod: dir}, download.NewDownloader(nil, "test", nil), Options{})
	return inst, dir
}

func TestInstaller_BatchIsolation(t *testing.T) {
	srv := fileServer(t, map[string][]byte{
		"a.jar": []byte("jar-a"),
		"c.jar": []byte("jar-c"),
	})
	inst, dir := newTestInstaller(t)

	req := InstallRequest{Kind: KindMod, Items: []Item{
		{ID: "a", Name: "A", DownloadURL: srv.URL + "/a.jar", Filename: "a.jar"},
		{ID: "b", Name: "B", DownloadURL: srv.URL + "/b.jar", Filename: "b.jar"},
		{ID: "c", Name: "C", DownloadURL: srv.URL + "/c.jar", Filename: "c.jar"},
	}}
	events := collect(t, inst.Stream(context.Background(), req))
	require.NotEmpty(t, events)

	start, ok := events[0].(StartEvent)
	require.True(t, ok)
	assert.Equal(t, 3, start.TotalItems)

	var outcomes []string
	for _, ev := range events {
		switch e := ev.(type) {
		case ItemCompleteEvent:
			outcomes = append(outcomes, "ok:"+e.ItemID)
		case ItemErrorEvent:
			outcomes = append(outcomes, "err:"+e.ItemID)
			assert.Equal(t, 1, e.ItemIndex)
			assert.Contains(t, e.Error, "404")
		}
	}
	assert.Equal(t, []string{"ok:a", "err:b", "ok:c"}, outcomes)

	done, ok := events[len(events)-1].(CompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "2 mod(s) installed, 1 failed", done.Message)
	assert.Equal(t, []string{"A", "C"}, done.Installed)
	assert.Equal(t, []string{"B"}, done.Failed)

	data, err := os.ReadFile(filepath.Join(dir, "a.jar"))
	require.NoError(t, err)
	assert.Equal(t, "jar-a", string(data))
	_, err = os.Stat(filepath.Join(dir, "b.jar"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no partial files left behind")
}

func TestInstaller_ProgressIsMonotonic(t *testing.T) {
	payload := make([]byte, 300*1024)
	srv := fileServer(t, map[string][]byte{"big.jar": payload})
	inst, _ := newTestInstaller(t)

	events := collect(t, inst.Stream(context.Background(), InstallRequest{Kind: KindMod, Items: []Item{
		{ID: "big", Name: "Big", DownloadURL: srv.URL + "/big.jar", Filename: "big.jar"},
	}}))

	last := -1
	var seen int
	for _, ev := range events {
		if d, ok := ev.(DownloadingEvent); ok {
			assert.GreaterOrEqual(t, d.Progress, last)
			last = d.Progress
			seen++
		}
	}
	assert.Equal(t, 100, last)
	assert.Greater(t, seen, 1)
}

func TestInstaller_RejectsUnsafeFilename(t *testing.T) {
	srv := fileServer(t, map[string][]byte{"x.jar": []byte("x")})
	inst, _ := newTestInstaller(t)

	events := collect(t, inst.Stream(context.Background(), InstallRequest{Kind: KindMod, Items: []Item{
		{ID: "x", Name: "X", DownloadURL: srv.URL + "/x.jar", Filename: "../../evil.jar"},
	}}))

	var itemErr ItemErrorEvent
	for _, ev := range events {
		if e, ok := ev.(ItemErrorEvent); ok {
			itemErr = e
		}
	}
	assert.Equal(t, "x", itemErr.ItemID)
	assert.NotEmpty(t, itemErr.Error)
	assert.Equal(t, TypeComplete, events[len(events)-1].EventType())
}

func TestInstaller_EmptyAndUnknown(t *testing.T) {
	inst, _ := newTestInstaller(t)

	events := collect(t, inst.Stream(context.Background(), InstallRequest{Kind: KindShader}))
	require.Len(t, events, 1)
	assert.Equal(t, ErrorEvent{Message: "No shader(s) to install"}, events[0])

	events = collect(t, inst.Stream(context.Background(), InstallRequest{Kind: KindShader, Items: []Item{{ID: "s"}}}))
	require.Len(t, events, 1)
	assert.Equal(t, TypeError, events[0].EventType())
}

func TestInstaller_CancelClosesStream(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	inst, dir := newTestInstaller(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch := inst.Stream(ctx, InstallRequest{Kind: KindMod, Items: []Item{
		{ID: "slow", Name: "Slow", DownloadURL: srv.URL + "/slow.jar", Filename: "slow.jar"},
	}})

	first := <-ch
	assert.Equal(t, TypeStart, first.EventType())
	cancel()

	for range ch {
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstaller_PublishesEvents(t *testing.T) {
	srv := fileServer(t, map[string][]byte{"a.jar": []byte("a")})
	pub := &recordingPublisher{}
	dir := t.TempDir()
	inst := NewInstaller(map[ItemKind]string{KindMod: dir}, download.NewDownloader(nil, "test", nil), Options{Publisher: pub})

	events := collect(t, inst.Stream(context.Background(), InstallRequest{Kind: KindMod, Items: []Item{
		{ID: "a", Name: "A", DownloadURL: srv.URL + "/a.jar", Filename: "a.jar"},
	}}))

	require.Len(t, pub.payloads, len(events))
	assert.True(t, strings.HasPrefix(pub.payloads[0], `install {"type":"start"`))
}

func TestParseInstallRequest(t *testing.T) {
	body := []byte(`{"mods":[{"id":"a","name":"A","downloadUrl":"https://cdn/a.jar","filename":"a.jar","size":10}]}`)
	req, err := ParseInstallRequest(KindMod, body)
	require.NoError(t, err)
	require.Len(t, req.Items, 1)
	assert.Equal(t, int64(10), req.Items[0].Size)

	req, err = ParseInstallRequest(KindShader, []byte(`{"items":[{"id":"s","name":"S","downloadUrl":"https://cdn/s.zip","filename":"s.zip"}]}`))
	require.NoError(t, err)
	assert.Len(t, req.Items, 1)

	_, err = ParseInstallRequest(KindMod, []byte(`{"mods":[{"id":"a"}]}`))
	var vErr *validation.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = ParseInstallRequest(KindMod, []byte(`not json`))
	assert.Error(t, err)
}
