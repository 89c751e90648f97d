// Package integration provides integration tests for the sync monitor.
// These tests run the complete monitor lifecycle against an in-memory
// directory and a fake Alertmanager.
package integration
