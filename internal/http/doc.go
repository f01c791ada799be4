// Package http provides the client for the inference service API.
//
// This package handles:
//   - Streaming multipart/related study uploads
//   - Single status queries
//   - Result downloads, returned unread so the caller can decode the body
//   - Mapping non-2xx responses onto [StatusError] and sentinel errors
//
// The API key travels in the x-goog-meta-owner header on every request and
// is never logged. Failed calls are not retried; the status poller is the
// only loop that re-issues requests.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    BaseURL:    "https://api.example.com",
//	    APIKey:     key,
//	    PathPrefix: "/v3",
//	    Logger:     logger,
//	})
//
//	err := client.UploadStudy(ctx, studyKey, sources)
//	status, err := client.Status(ctx, studyKey)
//
//	res, err := client.Download(ctx, studyKey, set.Query())
//	defer res.Body.Close()
package http
