// Package poller repeatedly queries a study's processing status until the
// service reports it done.
//
// Requests are spaced by a fixed interval. The wait ends on the terminal
// status, on the first request error, when the optional attempt cap is hit
// ([ErrMaxAttempts]), or when the context is canceled.
//
// # Usage
//
//	p := poller.New(client, poller.Options{
//	    Interval:    3 * time.Second,
//	    MaxAttempts: 200,
//	    Logger:      logger,
//	})
//	status, err := p.Wait(ctx, studyKey)
package poller
