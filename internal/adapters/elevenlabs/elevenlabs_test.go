package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"franklin/internal/adapters"
)

type memoryUploader struct {
	key         string
	data        []byte
	contentType string
	err         error
}

func (u *memoryUploader) Store(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.key, u.data, u.contentType = key, data, contentType
	return "https://cdn.example.com/" + key + "?sig=abc", nil
}

// TestSynthesizeUploadsAudio posts the voice request and stores the MP3 body.
func TestSynthesizeUploadsAudio(t *testing.T) {
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "el-key" {
			t.Errorf("api key header = %q", r.Header.Get("xi-api-key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	up := &memoryUploader{}
	c := New(Config{APIKey: "el-key", VoiceID: "voice-42", BaseURL: srv.URL + "/v1"}, up, srv.Client())

	url, err := c.Synthesize(context.Background(), "job-9", "Early to bed.")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if url != "https://cdn.example.com/audio/job-9.mp3?sig=abc" {
		t.Fatalf("url = %q", url)
	}
	if up.key != "audio/job-9.mp3" || string(up.data) != "ID3-fake-mp3" || up.contentType != "audio/mpeg" {
		t.Fatalf("unexpected upload: key=%s type=%s data=%q", up.key, up.contentType, up.data)
	}
	if got.Text != "Early to bed." || got.ModelID != DefaultModel || got.VoiceSettings.Stability != 0.5 || got.VoiceSettings.SimilarityBoost != 0.8 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

// TestSynthesizeProviderError does not upload when the API fails.
func TestSynthesizeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusUnauthorized)
	}))
	defer srv.Close()

	up := &memoryUploader{}
	c := New(Config{APIKey: "k", VoiceID: "v", BaseURL: srv.URL}, up, srv.Client())
	_, err := c.Synthesize(context.Background(), "job-1", "text")

	var se *adapters.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want StatusError 401", err)
	}
	if up.key != "" {
		t.Fatal("uploaded despite provider error")
	}
}

// TestSynthesizeUploadError wraps storage failures.
func TestSynthesizeUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	storeErr := errors.New("bucket missing")
	c := New(Config{APIKey: "k", VoiceID: "v", BaseURL: srv.URL}, &memoryUploader{err: storeErr}, srv.Client())
	if _, err := c.Synthesize(context.Background(), "job-1", "text"); !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped storage error", err)
	}
}
