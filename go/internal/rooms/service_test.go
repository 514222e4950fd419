package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/quizrooms/go/internal/quiz"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeRepo, *quiz.Registry) {
	t.Helper()
	app, repo, reg := newTestApp(t)
	router := httprouter.New()
	NewService(app, "https://quiz.example").RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, repo, reg
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestCreateRoomEndpoint(t *testing.T) {
	srv, repo, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/rooms", strings.NewReader(`{"name":"Lunch quiz"}`))
	req.Header.Set("X-User-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var body struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	decodeBody(t, resp, &body)
	if body.Name != "Lunch quiz" || len(body.Code) != quiz.CodeLength {
		t.Errorf("body = %+v", body)
	}
	if len(repo.created) != 1 {
		t.Errorf("rooms created = %d", len(repo.created))
	}
}

func TestCreateRoomEndpointErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		user   string
		body   string
		status int
		code   string
	}{
		{"no user", "", `{"name":"x"}`, http.StatusUnauthorized, "not_authenticated"},
		{"bad user", "abc", `{"name":"x"}`, http.StatusUnauthorized, "not_authenticated"},
		{"bad json", "1", `{`, http.StatusBadRequest, "invalid_body"},
		{"empty name", "1", `{"name":""}`, http.StatusBadRequest, "invalid_name"},
		{"unknown user", "7", `{"name":"x"}`, http.StatusBadRequest, "user_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/rooms", strings.NewReader(tt.body))
			if tt.user != "" {
				req.Header.Set("X-User-ID", tt.user)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var body struct{ Error string }
			decodeBody(t, resp, &body)
			if body.Error != tt.code {
				t.Errorf("error = %q, want %q", body.Error, tt.code)
			}
		})
	}
}

func TestPublicRoomsEndpoint(t *testing.T) {
	srv, _, reg := newTestServer(t)
	r, _ := reg.GetOrCreateEphemeral("OPEN01", 0)
	if err := r.Join("c1", 1, "alice", ""); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/rooms/public")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Rooms []quiz.PublicRoom `json:"rooms"`
	}
	decodeBody(t, resp, &body)
	if len(body.Rooms) != 1 || body.Rooms[0].Code != "OPEN01" || body.Rooms[0].Players != 1 {
		t.Errorf("rooms = %+v", body.Rooms)
	}
}

func TestGetRoomEndpoint(t *testing.T) {
	srv, _, reg := newTestServer(t)
	if _, err := reg.GetOrCreateEphemeral("LIVE01", 0); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/rooms/live01", http.StatusOK},
		{"/rooms/NONE00", http.StatusNotFound},
		{"/rooms/bad", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.status)
		}
	}
}

func TestQRCodeEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/rooms/abc123/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != qrSize {
		t.Errorf("width = %d, want %d", b.Dx(), qrSize)
	}
}

func TestRoomURL(t *testing.T) {
	s := NewService(nil, "")
	req := httptest.NewRequest(http.MethodGet, "/rooms/ABC123/qr", nil)
	req.Host = "play.example"
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := s.roomURL(req, "ABC123"); got != "https://play.example/rooms/ABC123" {
		t.Errorf("roomURL = %q", got)
	}

	s = NewService(nil, "https://quiz.example/")
	if got := s.roomURL(req.WithContext(context.Background()), "ABC123"); got != "https://quiz.example/rooms/ABC123" {
		t.Errorf("roomURL = %q", got)
	}
}
