// Package file writes flushed performance batches to disk.
//
// Output implements performance.Listener. Each entry becomes one JSON
// document followed by a newline ("jsonl"), or an indented document
// ("json"). When a batch reports drops, a trailing record of the form
//
//	{"entryType":"event","dropped":3,"batchId":"..."}
//
// follows its entries.
//
// Files are rotated by lumberjack once they reach MaxSizeMB; MaxBackups and
// MaxAgeDays bound how many rotated files are kept.
//
//	out, err := file.NewOutput(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer out.Close()
//	unsubscribe, err := reporter.Subscribe(out)
package file
