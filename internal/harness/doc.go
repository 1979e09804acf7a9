// Package harness runs list synchronization scenarios.
//
// A scenario is a YAML file naming a table, the rows the backend returns on
// the initial fetch, and a sequence of change events. The harness mounts a
// real listsync.Synchronizer over an in-memory source, folds every event
// through Synchronizer.Handle, and records a trace: the collection order
// and the notifications raised after each step.
//
// Traces are deterministic, so they are compared against golden files:
//
//	go test ./internal/harness -update
//
// regenerates testdata/golden/<scenario>.golden.
//
// Example scenario:
//
//	name: comisiones_basic
//	description: Insert and delete keep tipo, nombre order
//	table: comisiones
//	initial:
//	  - {id: 1, tipo: Senado, nombre: Hacienda}
//	  - {id: 2, tipo: Senado, nombre: Educación}
//	steps:
//	  - insert: {id: 3, tipo: Cámara, nombre: Agricultura}
//	  - delete: 2
//	assertions:
//	  - type: order
//	    labels: [Agricultura, Hacienda]
package harness
