package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuSP19/xkcd-comics/internal/api"
	"github.com/LuSP19/xkcd-comics/internal/config"
	"github.com/LuSP19/xkcd-comics/internal/service"
)

// fakeBackend serves both the xkcd and the VK endpoints.
type fakeBackend struct {
	mu       sync.Mutex
	hits     []string
	saveBody string
	form     map[string]string
}

func (b *fakeBackend) hit(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hits = append(b.hits, name)
}

func (b *fakeBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.hits...)
}

func newBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{
		saveBody: `{"response": [{"id": 99, "owner_id": -555}]}`,
		form:     map[string]string{},
	}
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/info.0.json", func(w http.ResponseWriter, r *http.Request) {
		b.hit("latest")
		fmt.Fprint(w, `{"num": 500}`)
	})
	mux.HandleFunc("/42/info.0.json", func(w http.ResponseWriter, r *http.Request) {
		b.hit("comic")
		fmt.Fprintf(w, `{"num": 42, "title": "Geico", "alt": "Network", "img": %q}`, srv.URL+"/comics/network.png")
	})
	mux.HandleFunc("/comics/network.png", func(w http.ResponseWriter, r *http.Request) {
		b.hit("image")
		w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/method/photos.getWallUploadServer", func(w http.ResponseWriter, r *http.Request) {
		b.hit("getWallUploadServer")
		fmt.Fprintf(w, `{"response": {"upload_url": %q}}`, srv.URL+"/upload")
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		b.hit("upload")
		fmt.Fprint(w, `{"server": 7, "photo": "p1", "hash": "abc"}`)
	})
	mux.HandleFunc("/method/photos.saveWallPhoto", func(w http.ResponseWriter, r *http.Request) {
		b.hit("saveWallPhoto")
		fmt.Fprint(w, b.saveBody)
	})
	mux.HandleFunc("/method/wall.post", func(w http.ResponseWriter, r *http.Request) {
		b.hit("wall.post")
		r.ParseForm()
		b.mu.Lock()
		for k := range r.PostForm {
			b.form[k] = r.PostForm.Get(k)
		}
		b.mu.Unlock()
		fmt.Fprint(w, `{"response": {"post_id": 1234}}`)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func setEnv(t *testing.T, srv *httptest.Server) {
	t.Helper()
	t.Setenv("VK_ACCESS_TOKEN", "secret-token")
	t.Setenv("COMICS_GROUP_ID", "555")
	t.Setenv("VK_API_VERSION", "")
	t.Setenv("XKCD_BASE_URL", srv.URL)
	t.Setenv("VK_BASE_URL", srv.URL)
	t.Setenv("XKCD_LOG_LEVEL", "")
	t.Setenv("XKCD_LOG_FORMAT", "")
}

type testCLI struct {
	*CLI
	out, errOut, logs *bytes.Buffer
}

func newTestCLI() *testCLI {
	tc := &testCLI{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, logs: &bytes.Buffer{}}
	tc.CLI = &CLI{
		out:     tc.out,
		errOut:  tc.errOut,
		in:      &bytes.Buffer{},
		logOut:  tc.logs,
		open:    func(string) error { return errors.New("no viewer in tests") },
		prompt:  func(string) (bool, error) { return true, nil },
		isTTY:   func() bool { return false },
		newPick: func(int) int { return 41 },
	}
	return tc
}

func TestRootCommand(t *testing.T) {
	cmd := NewCLI().NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "xkcd-comics", cmd.Use)

	for _, name := range []string{"env-file", "id", "dry-run", "preview", "confirm", "log-level", "log-format"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, ".env", cmd.Flags().Lookup("env-file").DefValue)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, ExitOK},
		{"declined", fmt.Errorf("run: %w", service.ErrDeclined), ExitOK},
		{"config", fmt.Errorf("%w: missing", config.ErrInvalid), ExitConfig},
		{"comic out of range", fmt.Errorf("run: %w", service.ErrComicOutOfRange), ExitConfig},
		{"network", fmt.Errorf("get latest comic: %w", &api.NetworkError{Op: "xkcd latest", StatusCode: 500}), ExitNetwork},
		{"api", fmt.Errorf("save wall photo: %w", &api.APIError{Code: 5}), ExitAPI},
		{"malformed", &api.MalformedResponseError{Op: "x", Field: "img"}, ExitMalformed},
		{"other", errors.New("disk full"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExecutePublishes(t *testing.T) {
	b, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()

	code := tc.Execute(context.Background(), nil)
	require.Equal(t, ExitOK, code, tc.errOut.String())

	assert.Equal(t, []string{"latest", "comic", "image", "getWallUploadServer", "upload", "saveWallPhoto", "wall.post"}, b.calls())
	assert.Equal(t, "-555", b.form["owner_id"])
	assert.Equal(t, "1", b.form["from_group"])
	assert.Equal(t, "photo-555_99", b.form["attachments"])
	assert.Equal(t, "Network", b.form["message"])

	assert.Contains(t, tc.out.String(), "Published xkcd #42")
	assert.Contains(t, tc.out.String(), "post 1234")
	assert.Contains(t, tc.logs.String(), "run_id=")
	assert.NotContains(t, tc.logs.String(), "secret-token")
}

func TestExecuteSaveErrorSkipsPost(t *testing.T) {
	b, srv := newBackend(t)
	b.saveBody = `{"error": {"error_code": 5, "error_msg": "auth failed"}}`
	setEnv(t, srv)
	tc := newTestCLI()

	code := tc.Execute(context.Background(), nil)
	assert.Equal(t, ExitAPI, code)
	assert.NotContains(t, b.calls(), "wall.post")
	assert.Contains(t, tc.errOut.String(), "auth failed")
}

func TestExecuteDryRun(t *testing.T) {
	b, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()

	code := tc.Execute(context.Background(), []string{"--dry-run", "--log-format", "json"})
	require.Equal(t, ExitOK, code, tc.errOut.String())

	assert.Equal(t, []string{"latest", "comic", "image"}, b.calls())
	assert.Contains(t, tc.out.String(), "Dry run:")
	assert.Contains(t, tc.logs.String(), `"run_id"`)
}

func TestExecutePinnedComic(t *testing.T) {
	b, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()
	tc.newPick = func(int) int {
		t.Fatal("picker must not run for a pinned id")
		return 0
	}

	code := tc.Execute(context.Background(), []string{"--id", "42", "--dry-run"})
	require.Equal(t, ExitOK, code, tc.errOut.String())
	assert.Contains(t, b.calls(), "comic")
}

func TestExecutePinnedComicOutOfRange(t *testing.T) {
	b, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()

	code := tc.Execute(context.Background(), []string{"--id", "501"})
	assert.Equal(t, ExitConfig, code)
	assert.Equal(t, []string{"latest"}, b.calls())
	assert.Contains(t, tc.errOut.String(), "501")
}

func TestExecuteMalformedSaveSkipsPost(t *testing.T) {
	b, srv := newBackend(t)
	b.saveBody = `{"response": [{"date": 1}]}`
	setEnv(t, srv)
	tc := newTestCLI()

	code := tc.Execute(context.Background(), nil)
	assert.Equal(t, ExitMalformed, code)
	assert.Contains(t, b.calls(), "saveWallPhoto")
	assert.NotContains(t, b.calls(), "wall.post")
}

func TestExecuteConfigError(t *testing.T) {
	_, srv := newBackend(t)
	setEnv(t, srv)
	t.Setenv("VK_ACCESS_TOKEN", "")
	tc := newTestCLI()

	code := tc.Execute(context.Background(), nil)
	assert.Equal(t, ExitConfig, code)
	assert.Contains(t, tc.errOut.String(), "VK_ACCESS_TOKEN")
}

func TestExecuteMissingExplicitEnvFile(t *testing.T) {
	_, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()

	code := tc.Execute(context.Background(), []string{"--env-file", "/nonexistent/.env"})
	assert.Equal(t, ExitConfig, code)
}

func TestConfirmNeedsTTY(t *testing.T) {
	b, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()

	code := tc.Execute(context.Background(), []string{"--confirm"})
	assert.Equal(t, ExitFailure, code)
	assert.Empty(t, b.calls())
	assert.Contains(t, tc.errOut.String(), "interactive terminal")
}

func TestConfirmDeclined(t *testing.T) {
	b, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()
	tc.isTTY = func() bool { return true }
	var label string
	tc.prompt = func(l string) (bool, error) {
		label = l
		return false, nil
	}

	code := tc.Execute(context.Background(), []string{"--confirm"})
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, label, "xkcd #42")
	assert.Equal(t, []string{"latest", "comic", "image"}, b.calls())
	assert.Contains(t, tc.out.String(), "Skipped")
}

func TestPreviewOpensImage(t *testing.T) {
	_, srv := newBackend(t)
	setEnv(t, srv)
	tc := newTestCLI()
	var opened string
	tc.open = func(path string) error {
		opened = path
		_, err := os.Stat(path)
		return err
	}

	code := tc.Execute(context.Background(), []string{"--preview", "--dry-run"})
	require.Equal(t, ExitOK, code, tc.errOut.String())

	require.NotEmpty(t, opened)
	assert.NoFileExists(t, opened, "image is removed after the run")
	assert.Contains(t, tc.out.String(), "Network")
}
