// Package pipeline drives studies through the inference service.
//
// Each study moves through a fixed sequence of stages (see [Stage]):
// upload, status polling until the service reports done, then one
// concurrent download per requested parameter set. Studies are handed to
// a fixed pool of workers and are independent of each other: a failure is
// recorded in the study's [StudyResult] and never reaches its siblings.
//
// Lifecycle events go to a [progress.Bus] for reporting only.
//
// # Concurrency
//
//   - MaxConcurrentStudies workers process studies
//   - MaxConcurrentUploads bounds uploads in flight
//   - MaxConcurrentDownloads bounds downloads in flight across all studies
//   - StudyTimeout bounds the active time of each study
//
// With UploadBarrier set, the run is split in two phases: every study is
// uploaded first (a failed upload still counts as finished), then the
// uploaded studies are polled and downloaded.
//
// # Usage
//
//	orch := pipeline.New(client, dicomfile.NewReader(), sink, pipeline.Options{
//	    ParameterSets:        sets,
//	    MaxConcurrentStudies: 8,
//	    Logger:               logger,
//	})
//	summary, err := orch.Run(ctx, inv)
//	for _, r := range summary.Failed() {
//	    fmt.Println(r.StudyKey, r.Failure())
//	}
package pipeline
