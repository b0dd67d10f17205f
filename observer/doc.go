// Package observer provides pipeline.Observer implementations.
//
//   - LogObserver: writes pixel and task lifecycle events to a zap-backed
//     logging.Logger. Task timings go to trace level; failures to warn.
//   - Metrics: counts pixels, tasks, segments and breaks in Prometheus and
//     records task durations.
//
// Combine them with pipeline.MultiObserver.
package observer
