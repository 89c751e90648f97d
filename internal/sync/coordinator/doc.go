// Package coordinator runs the replication check periodically for the monitor
// command.
//
// Each iteration calls a sync.Checker and then:
//
//   - saves a status.ConsumerStatus per consumer (or marks every consumer
//     failed when the provider could not be reached)
//   - records lag, in-sync and duration metrics
//   - hands one alert per out-of-sync consumer to an alert.Sink
//
// The interval carries ±10% jitter. Persistence and alert delivery errors
// are logged; the loop keeps running.
//
// # Usage
//
//	coord := coordinator.New(orchestrator, status.NewFileStatusPersistence(dir), cfg,
//	    coordinator.WithSink(sink),
//	    coordinator.WithCheckMetrics(metrics))
//	go func() { _ = coord.Start(ctx) }()
//	defer coord.Stop()
package coordinator
