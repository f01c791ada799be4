package testutils

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ligustah/milvue/internal/dicomfile"
	"github.com/ligustah/milvue/pkg/bundle"
)

// ResultFile is one file the fake service returns for a download.
type ResultFile struct {
	Name string
	Data []byte
}

// Script drives the fake service's answers for one study.
type Script struct {
	// Statuses are returned by successive status requests; the last one
	// repeats. Default: ["done"].
	Statuses []string

	// UploadStatus, when set, fails the upload with this HTTP status.
	UploadStatus int

	// StatusCode, when set, fails every status request with this code.
	StatusCode int

	// Results maps an inference command to the files it returns. A command
	// with no entry gets a JSON response without a boundary.
	Results map[string][]ResultFile

	// DownloadStatus maps an inference command to an HTTP failure code.
	DownloadStatus map[string]int
}

// Upload records one accepted or rejected upload.
type Upload struct {
	Study string
	Parts []string
}

// Download records one results request.
type Download struct {
	Study string
	Query url.Values
}

// FakeService is an httptest server mimicking the inference service API.
type FakeService struct {
	*httptest.Server

	APIKey   string
	identify func([]byte) (dicomfile.Attributes, error)

	mu        sync.Mutex
	scripts   map[string]*Script
	uploads   []Upload
	statuses  map[string]int
	downloads []Download
}

// ServiceOption configures a FakeService.
type ServiceOption func(*FakeService)

// WithIdentifier sets how uploaded parts are attributed to studies.
// Default: FakeReader.ReadBytes.
func WithIdentifier(fn func([]byte) (dicomfile.Attributes, error)) ServiceOption {
	return func(s *FakeService) {
		s.identify = fn
	}
}

// NewFakeService starts a fake service requiring apiKey. It is closed when
// the test ends.
func NewFakeService(t testing.TB, apiKey string, opts ...ServiceOption) *FakeService {
	t.Helper()

	s := &FakeService{
		APIKey:   apiKey,
		identify: FakeReader{}.ReadBytes,
		scripts:  make(map[string]*Script),
		statuses: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Route("/v3/studies", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/{studyKey}/status", s.handleStatus)
		r.Get("/{studyKey}", s.handleDownload)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// Script sets the behavior for a study.
func (s *FakeService) Script(study string, script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[study] = &script
}

// Uploads returns every upload received so far.
func (s *FakeService) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// StatusCalls returns the number of status requests made for a study.
func (s *FakeService) StatusCalls(study string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[study]
}

// Downloads returns every results request received so far.
func (s *FakeService) Downloads() []Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Download(nil), s.downloads...)
}

func (s *FakeService) script(study string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scripts[study]; ok {
		return sc
	}
	return &Script{}
}

func (s *FakeService) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-meta-owner") != s.APIKey {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *FakeService) handleUpload(w http.ResponseWriter, r *http.Request) {
	mediaType, ps, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		http.Error(w, "expected multipart/related", http.StatusUnsupportedMediaType)
		return
	}

	var up Upload
	mr := multipart.NewReader(r.Body, ps["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		attrs, err := s.identify(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if up.Study != "" && up.Study != attrs.StudyInstanceUID {
			http.Error(w, "parts belong to different studies", http.StatusBadRequest)
			return
		}
		up.Study = attrs.StudyInstanceUID
		up.Parts = append(up.Parts, p.FileName())
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, up)
	s.mu.Unlock()

	if code := s.script(up.Study).UploadStatus; code != 0 {
		http.Error(w, "upload rejected", code)
		return
	}
	writeJSON(w, map[string]string{"StudyInstanceUID": up.Study})
}

func (s *FakeService) handleStatus(w http.ResponseWriter, r *http.Request) {
	study := chi.URLParam(r, "studyKey")
	sc := s.script(study)

	s.mu.Lock()
	n := s.statuses[study]
	s.statuses[study] = n + 1
	s.mu.Unlock()

	if sc.StatusCode != 0 {
		http.Error(w, "status unavailable", sc.StatusCode)
		return
	}

	statuses := sc.Statuses
	if len(statuses) == 0 {
		statuses = []string{"done"}
	}
	if n >= len(statuses) {
		n = len(statuses) - 1
	}
	writeJSON(w, map[string]string{
		"StudyInstanceUID": study,
		"status":           statuses[n],
		"version":          "test",
		"message":          "",
	})
}

func (s *FakeService) handleDownload(w http.ResponseWriter, r *http.Request) {
	study := chi.URLParam(r, "studyKey")
	query := r.URL.Query()
	cmd := query.Get("inference_command")
	sc := s.script(study)

	s.mu.Lock()
	s.downloads = append(s.downloads, Download{Study: study, Query: query})
	s.mu.Unlock()

	if code := sc.DownloadStatus[cmd]; code != 0 {
		http.Error(w, "download failed", code)
		return
	}

	files, ok := sc.Results[cmd]
	if !ok {
		writeJSON(w, map[string]string{"message": "no output"})
		return
	}

	sources := make([]bundle.Source, len(files))
	for i, f := range files {
		sources[i] = bundle.BytesSource(f.Name, f.Data)
	}
	body, contentType, err := bundle.Encode(context.Background(), sources)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	io.Copy(w, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
