package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// newUploadServer mocks the Slack external upload flow: the client asks
// for an upload URL, posts the bytes there, then completes the upload.
func newUploadServer(t *testing.T) (*httptest.Server, *uploadRecorder) {
	t.Helper()
	rec := &uploadRecorder{}
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/files.getUploadURLExternal", func(w http.ResponseWriter, r *http.Request) {
		rec.urlRequests++
		fmt.Fprintf(w, `{"ok":true,"upload_url":%q,"file_id":"F123"}`, srv.URL+"/upload")
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.uploaded = string(body)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/files.completeUploadExternal", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.completed = string(body)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":    true,
			"files": []map[string]string{{"id": "F123"}},
		})
	})
	return srv, rec
}

type uploadRecorder struct {
	urlRequests int
	uploaded    string
	completed   string
}

func TestSlackSendFile(t *testing.T) {
	srv, rec := newUploadServer(t)

	a := &SlackAdapter{
		client: slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")),
		logger: zap.NewNop(),
	}

	err := a.SendFile(context.Background(), "C1", &FileUpload{
		Name:    "notes.txt",
		Data:    []byte("the file body"),
		Caption: "here you go",
	})
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if rec.urlRequests != 1 {
		t.Errorf("got %d upload URL requests, want 1", rec.urlRequests)
	}
	if !strings.Contains(rec.uploaded, "the file body") {
		t.Errorf("uploaded payload missing file bytes: %q", rec.uploaded)
	}
	if !strings.Contains(rec.completed, "C1") {
		t.Errorf("complete call missing channel id: %q", rec.completed)
	}
}

func TestSlackTimestampRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0)
	if got := slackTime(slackTS(at)); !got.Equal(at) {
		t.Errorf("slackTime(slackTS(t)) = %v, want %v", got, at)
	}
	if got := slackTime("garbage"); got.IsZero() {
		t.Error("unparseable timestamp should fall back to now, got zero time")
	}
}
