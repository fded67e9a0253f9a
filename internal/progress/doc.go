// Package progress provides progress throttling and reporting for
// transfers.
//
// Meter bounds the rate at which progress callbacks fire so that a fast
// transfer cannot flood observers; the final byte count is always emitted.
// Reporter renders human-readable progress to a terminal.
//
// # Usage
//
//	meter := progress.NewMeter(func(transferred, total int64) {
//	    store.SetProgress(jobID, transferred, total)
//	}, 500*time.Millisecond)
//
//	meter.Update(n, total)  // throttled
//	meter.Finish(n, total)  // always emitted
//
// # Output Format
//
//	[provisiond] Downloading: model.safetensors
//	[provisiond] Total size: 2.00 GB
//	[provisiond] Progress: 45.2% | 924.00 MB / 2.00 GB | Speed: 120.00 MB/s | ETA: 9s
package progress
