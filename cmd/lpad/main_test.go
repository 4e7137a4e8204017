package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrCodeEU/lpad/pkg/access"
	"github.com/MrCodeEU/lpad/pkg/admin"
	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/kiosk"
)

// scripted answers prompts from a fixed list.
func scripted(answers ...string) (askFunc, *[]string) {
	var prompts []string
	return func(prompt string) (string, error) {
		prompts = append(prompts, prompt)
		if len(answers) == 0 {
			return "", errors.New("no more answers")
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}, &prompts
}

func TestCommandsTable(t *testing.T) {
	assert.Len(t, commands, len(commandOrder))
	for _, name := range commandOrder {
		cmd, ok := commands[name]
		if assert.True(t, ok, "command %s missing", name) {
			assert.Equal(t, name, cmd.Name)
			assert.NotEmpty(t, cmd.Usage)
			assert.NotNil(t, cmd.Run)
		}
	}
}

func TestAuthorize_FirstUseSetsPassword(t *testing.T) {
	store := admin.NewStore(filepath.Join(t.TempDir(), "admin.secret"))
	ask, prompts := scripted("s3cret", "s3cret")
	var out bytes.Buffer

	require.NoError(t, authorize(store, ask, &out))
	assert.Contains(t, out.String(), "No admin password set")
	assert.Len(t, *prompts, 2)
	assert.NoError(t, store.Verify("s3cret"))
}

func TestAuthorize_FirstUseMismatch(t *testing.T) {
	store := admin.NewStore(filepath.Join(t.TempDir(), "admin.secret"))
	ask, _ := scripted("s3cret", "other")

	err := authorize(store, ask, &bytes.Buffer{})
	assert.ErrorIs(t, err, errPasswordMismatch)
	assert.False(t, store.Exists())
}

func TestAuthorize_Existing(t *testing.T) {
	store := admin.NewStore(filepath.Join(t.TempDir(), "admin.secret"))
	require.NoError(t, store.Set("s3cret"))

	ask, prompts := scripted("s3cret")
	assert.NoError(t, authorize(store, ask, &bytes.Buffer{}))
	assert.Equal(t, []string{"Admin password: "}, *prompts)

	ask, _ = scripted("wrong")
	assert.ErrorIs(t, authorize(store, ask, &bytes.Buffer{}), admin.ErrWrongPassword)
}

func TestTerminalAsk_Piped(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	_, err = w.WriteString("first\r\nsecond")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	ask := terminalAsk(r, &out)

	a, err := ask("one: ")
	require.NoError(t, err)
	assert.Equal(t, "first", a)

	b, err := ask("two: ")
	require.NoError(t, err)
	assert.Equal(t, "second", b)

	_, err = ask("three: ")
	assert.Error(t, err)
	assert.Equal(t, "one: two: three: ", out.String())
}

func TestFormatUserList(t *testing.T) {
	counts := map[string]int{"alice": 25, "bob": 3}
	out := formatUserList([]string{"alice", "bob"}, func(u string) int { return counts[u] },
		map[string]bool{"alice": true})

	assert.Equal(t, "Enrolled users:\n"+
		"  - alice: 25 sample(s)\n"+
		"  - bob: 3 sample(s) (not trained)\n"+
		"\nTotal: 2 user(s)\n", out)
}

func TestMissingModels(t *testing.T) {
	dir := t.TempDir()
	assert.Len(t, missingModels(dir), len(faceModels))

	require.NoError(t, os.WriteFile(filepath.Join(dir, faceModels[0].Name), []byte("x"), 0644))
	missing := missingModels(dir)
	assert.Len(t, missing, len(faceModels)-1)
	for _, m := range missing {
		assert.NotEqual(t, faceModels[0].Name, m.Name)
	}
}

func TestDownloadAndExtract_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "model.dat")
	err := downloadAndExtract(srv.Client(), srv.URL+"/model.dat.bz2", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad status")
	assert.NoFileExists(t, target)
}

func TestDownloadAndExtract_CorruptArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not bzip2"))
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "model.dat")
	require.Error(t, downloadAndExtract(srv.Client(), srv.URL, target))
	assert.NoFileExists(t, target)
	assert.NoFileExists(t, target+".part")
}

type recordingDisplay struct {
	action access.Action
	shown  int
}

func (d *recordingDisplay) Show(camera.Frame, kiosk.Render) access.Action {
	d.shown++
	return d.action
}

func TestQuitAfterTraining(t *testing.T) {
	inner := &recordingDisplay{action: access.ActionStop}
	q := quitAfterTraining{inner}

	assert.Equal(t, access.ActionStop, q.Show(camera.Frame{}, kiosk.Render{}))
	assert.Equal(t, access.ActionQuit, q.Show(camera.Frame{}, kiosk.Render{TrainingPending: true}))
	assert.Equal(t, 2, inner.shown)
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains(nil, "a"))
}

func TestUserName(t *testing.T) {
	name, err := userName("remove", []string{"  alice "})
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	_, err = userName("remove", nil)
	assert.ErrorContains(t, err, "lpad remove <name>")

	for _, bad := range []string{".bob", "a/b", "Unknown", ""} {
		_, err := userName("enroll", []string{bad})
		assert.ErrorContains(t, err, "invalid name", "name %q", bad)
	}
}
