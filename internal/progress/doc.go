// Package progress aggregates study lifecycle events for reporting.
//
// Every study worker publishes Uploaded, Predicted and Downloaded events
// into one buffered channel; a single consumer goroutine drains it, keeps
// counters, logs each event and drives an optional terminal progress bar.
// The bus is purely observational: workers never wait on its state.
//
// # Usage
//
//	bus := progress.NewBus(progress.Options{
//	    Total:  inv.Len(),
//	    Output: os.Stderr,
//	    Logger: logger,
//	})
//	bus.Start()
//
//	// in each worker
//	bus.Publish(ctx, progress.Event{Kind: progress.Uploaded, StudyKey: key})
//
//	// once every worker has returned
//	counts := bus.Close()
//
// # Output Format
//
//	[milvue] 2 uploaded | 2 predicted  50% |███████████████               | (1/2)
//	[milvue] Studies: 2 uploaded | 2 predicted | 2 downloaded | Files written: 6 | Total time: 41s
package progress
