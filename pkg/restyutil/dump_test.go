package restyutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mutex    sync.Mutex
	messages map[string]string
}

func (o *memoryOutput) Write(id string, contents string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.messages[id] = contents
}

func TestDumpMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/event/admin_organizer", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sr_id", Value: "rotated"})
		w.Write([]byte("<html>admin</html>"))
	})
	mux.HandleFunc("/event/organizer_approve", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/event/admin_organizer", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	output := &memoryOutput{messages: map[string]string{}}
	client := resty.New().SetBaseURL(server.URL)
	client.SetHeader("Cookie", "sr_id=secret")
	DumpMessages(client, output)

	_, err := client.R().Get("/event/admin_organizer")
	require.NoError(t, err)
	_, err = client.R().
		SetFormData(map[string]string{"room_id": "111"}).
		Post("/event/organizer_approve")
	require.NoError(t, err)

	require.Len(t, output.messages, 2)

	get := output.messages["001-get-admin_organizer.txt"]
	require.Contains(t, get, "GET "+server.URL+"/event/admin_organizer")
	require.Contains(t, get, "<html>admin</html>")
	require.Contains(t, get, "Cookie: <redacted>")
	require.Contains(t, get, "Set-Cookie: <redacted>")
	require.NotContains(t, get, "secret")
	require.NotContains(t, get, "rotated")

	// the final url of a redirected post names the message
	post := output.messages["002-post-admin_organizer.txt"]
	require.Contains(t, post, "room_id=111")
	require.Contains(t, post, "200 "+server.URL+"/event/admin_organizer")
}

func TestFormatRequestBodyWithoutBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/event/admin_organizer", nil)
	req.GetBody = func() (io.ReadCloser, error) {
		return nil, nil
	}
	require.Equal(t, "", formatRequestBody(req))

	req.GetBody = nil
	require.Equal(t, "", formatRequestBody(req))
}

func TestDumpMessagesNilOutput(t *testing.T) {
	client := resty.New()
	DumpMessages(client, nil)
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dump")

	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	output.Write("001-get-root.txt", "old")
	output.Write("001-get-root.txt", "contents")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	contents, err := os.ReadFile(filepath.Join(dir, "001-get-root.txt"))
	require.NoError(t, err)
	require.Equal(t, "contents", string(contents))
}
