// Package harness runs end-to-end worker scenarios.
//
// A scenario submits one job to a fully wired worker whose compiler and
// delegator are scripted, lets the job run to an end state, and checks the
// WorkerEvents it produced.
//
// # Scenario Format
//
//	name: happy_path
//	description: "Two tests compile and pass"
//	job:
//	  label: nightly
//	  manifest: [login.yml]
//	  sources:
//	    login.yml: "open: /login"
//	compiler:
//	  login.yml:
//	    tests:
//	      - target: login.js
//	        browser: chrome
//	        step_names: [open]
//	delegator:
//	  login.js:
//	    - {type: test}
//	    - {type: step, payload: {name: open, status: passed}}
//	collector:
//	  reject: [2]
//	assertions:
//	  - type: event_types
//	    types: [job/started, compilation/started]
//	  - type: end_state
//	    state: complete
//
// A source without a compiler entry compiles to no tests, which the worker
// treats as a compilation failure. A target without a delegator entry runs
// and passes with no documents.
//
// # Assertion Types
//
//   - event_types: the WorkerEvent types, in sequence order, are exactly types
//   - event_order: types appear in this relative order
//   - event_count: type occurs exactly count times
//   - event_state: the event with sequence_number ends in state
//   - end_state: the job end state is state
//   - test_state: the test compiled from source ends in state
//   - application_state: the application progress is state
//
// # Golden Files
//
// RunWithGolden compares the event trace with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
