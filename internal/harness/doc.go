// Package harness provides conformance testing for rule artifacts.
//
// A scenario declares party schemas, one rule, optional per-party rows and
// what applying the rule must produce. The harness applies the rule through
// the same substitution path as production, stores the artifact and the
// resulting serving dumps, and checks the expectations.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: vertical_fill
//	description: "Fill gaps in both parties"
//	parties:
//	  - party: A
//	    columns:
//	      - {name: id1, type: str, role: id}
//	      - {name: a2, type: float32}
//	  - party: B
//	    columns:
//	      - {name: b4, type: float32}
//	rule: rules/fill.cue        # CUE rule file, relative to the scenario
//	rule_name: fill_gaps        # required when the file declares several rules
//	rows:                       # optional; without rows the run is symbolic
//	  A: [["r0", "NaN"], ["r1", "0.5"]]
//	  B: [["NA"], ["1"]]
//	expect:
//	  columns:
//	    A: [id1, a2]
//	  no_missing: [a2, b4]
//	  parity: true
//
// Instead of rule, a scenario may carry an inline artifact: the canonical
// JSON produced by rule.Save.
//
// # Expectations
//
//   - columns: the output column names of each listed party
//   - no_missing: columns that must hold no missing value (materialized) or
//     carry the fillna guarantee (symbolic)
//   - error: the error code the run must fail with (UNKNOWN_COLUMN,
//     INVALID_RULE, GRAPH_INTEGRITY, SCHEMA_MISMATCH)
//   - parity: every party's dump equals its runner's dump, and with rows the
//     serving program reproduces the materialized output
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory store. Dumps contain no clocks or random
// ids, so they are compared against golden files byte for byte.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/fill.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
