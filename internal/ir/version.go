package ir

// Version constants for persisted formats.
const (
	// IRVersion is the computation graph schema version.
	IRVersion = "1"

	// RuleFormat tags a serialized rule artifact.
	RuleFormat = "ruletrace/rule"

	// RuleFormatVersion is the rule artifact wire version.
	RuleFormatVersion = "1"

	// RunnerFormat tags a serialized runner.
	RunnerFormat = "ruletrace/runner"
)
