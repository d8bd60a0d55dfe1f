// Package watcher watches a spool directory and ingests the documents
// dropped into it.
//
// fsnotify is used when available, with directory polling as a fallback for
// network mounts and container volumes. Events are debounced so that a file
// written in several steps is ingested once.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	spool := watcher.NewSpoolWatcher(w, coord, watcher.SpoolConfig{Dir: dir})
//	return spool.Run(ctx)
package watcher
