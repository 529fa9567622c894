// Package discordtest fakes the Discord REST API for handler tests.
package discordtest

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// Request is one call received by the fake server.
type Request struct {
	Method string
	Path   string
	// Body is the JSON body, or the payload_json part of a multipart upload.
	Body []byte
	// Files lists uploaded file names for multipart requests.
	Files []string
}

// Decode unmarshals the request body into v.
func (r Request) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("decode %s %s body: %v (%s)", r.Method, r.Path, err, r.Body)
	}
}

type route struct {
	method string
	suffix string
	status int
	body   string
}

// Server records requests and answers with canned responses.
type Server struct {
	mu       sync.Mutex
	requests []Request
	routes   []route
	nextID   int
}

// New starts a fake API, points discordgo's endpoints at it for the duration
// of the test and returns a session bound to it.
func New(t *testing.T) (*discordgo.Session, *Server) {
	t.Helper()
	fake := &Server{}
	srv := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(srv.Close)

	base := srv.URL + "/"
	oldAPI := discordgo.EndpointAPI
	oldChannels := discordgo.EndpointChannels
	oldGuilds := discordgo.EndpointGuilds
	oldWebhooks := discordgo.EndpointWebhooks
	oldApplications := discordgo.EndpointApplications
	discordgo.EndpointAPI = base
	discordgo.EndpointChannels = base + "channels/"
	discordgo.EndpointGuilds = base + "guilds/"
	discordgo.EndpointWebhooks = base + "webhooks/"
	discordgo.EndpointApplications = base + "applications"
	t.Cleanup(func() {
		discordgo.EndpointAPI = oldAPI
		discordgo.EndpointChannels = oldChannels
		discordgo.EndpointGuilds = oldGuilds
		discordgo.EndpointWebhooks = oldWebhooks
		discordgo.EndpointApplications = oldApplications
	})

	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	s.MaxRestRetries = 0
	s.State.User = &discordgo.User{ID: "bot", Username: "bruhbot", Bot: true}
	return s, fake
}

// Respond registers a canned response for requests whose method matches and
// whose path ends with suffix. Later registrations win.
func (f *Server) Respond(method, suffix string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{method: method, suffix: suffix, status: status, body: body})
}

// Requests returns a copy of every request received so far.
func (f *Server) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Find returns requests matching method whose path contains fragment.
func (f *Server) Find(method, fragment string) []Request {
	var out []Request
	for _, r := range f.Requests() {
		if r.Method == method && strings.Contains(r.Path, fragment) {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets recorded requests.
func (f *Server) Reset() {
	f.mu.Lock()
	f.requests = nil
	f.mu.Unlock()
}

func (f *Server) serve(w http.ResponseWriter, r *http.Request) {
	req := Request{Method: r.Method, Path: r.URL.Path}
	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "payload_json" {
				req.Body = data
			} else if name := part.FileName(); name != "" {
				req.Files = append(req.Files, name)
			}
		}
	} else {
		req.Body, _ = io.ReadAll(r.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.nextID++
	id := f.nextID
	var match *route
	for i := len(f.routes) - 1; i >= 0; i-- {
		rt := f.routes[i]
		if (rt.method == "" || rt.method == r.Method) && strings.HasSuffix(r.URL.Path, rt.suffix) {
			match = &rt
			break
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if match != nil {
		w.WriteHeader(match.status)
		_, _ = io.WriteString(w, match.body)
		return
	}
	switch {
	case r.Method == http.MethodPut || r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/callback"):
		w.WriteHeader(http.StatusNoContent)
	default:
		var b bytes.Buffer
		_ = json.NewEncoder(&b).Encode(map[string]string{"id": "9000" + strconv.Itoa(id)})
		_, _ = w.Write(b.Bytes())
	}
}
