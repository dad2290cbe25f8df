package restyutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mutex sync.Mutex
	files map[string]string
}

func (m *memoryOutput) Write(id string, contents string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.files == nil {
		m.files = map[string]string{}
	}
	m.files[id] = contents
}

func TestDumpClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=abc")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	output := &memoryOutput{}
	client := resty.New()
	DumpClient(client, output)

	_, err := client.R().
		SetAuthToken("secret-token").
		SetBody(`{"requests":[]}`).
		Post(server.URL + "/api/calls")
	require.NoError(t, err)

	require.Len(t, output.files, 1)
	dump := output.files["001.http"]
	require.Contains(t, dump, "POST "+server.URL+"/api/calls")
	require.Contains(t, dump, `{"requests":[]}`)
	require.Contains(t, dump, "418")
	require.Contains(t, dump, `{"results":[]}`)
	require.Contains(t, dump, "Authorization: <redacted>")
	require.NotContains(t, dump, "secret-token")
	require.NotContains(t, dump, "session=abc")
}

func TestDumpClientNilOutput(t *testing.T) {
	client := resty.New()
	DumpClient(client, nil)
}

func TestFilesystemOutput(t *testing.T) {
	dir := t.TempDir() + "/dumps"
	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)

	output.Write("login.html", "<html></html>")
	require.FileExists(t, dir+"/login.html")

	// a second run starts from an empty directory
	_, err = NewFilesystemOutput(dir)
	require.NoError(t, err)
	require.NoFileExists(t, dir+"/login.html")
}
