// Package preflight checks that the host and the configuration can run a
// knowledge base before a long-lived command starts.
//
// Required checks (data directory, disk space, file descriptors, config)
// block startup when they fail. Optional checks (embedder, reranker, writer
// lock, interrupted ingest) only warn: the engine degrades instead.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
