package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/ruletrace/internal/compiler"
	"github.com/roach88/ruletrace/internal/rule"
)

// loadArtifact reads a rule from path. A .cue file is compiled and must
// declare exactly one rule unless name selects one; any other file is read
// as canonical artifact JSON.
func loadArtifact(path, name string, d compiler.Defaults) (*rule.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read rule file", err)
	}
	if filepath.Ext(path) != ".cue" {
		return rule.Load(data)
	}
	compiled, err := compiler.CompileSource(path, data, d)
	if err != nil {
		return nil, err
	}
	return pickRule(compiled, name)
}

func pickRule(compiled []compiler.Compiled, name string) (*rule.Artifact, error) {
	if name == "" {
		if len(compiled) != 1 {
			return nil, fmt.Errorf("file declares %d rules, select one with --rule-name", len(compiled))
		}
		return compiled[0].Artifact, nil
	}
	for _, c := range compiled {
		if c.Name == name {
			return c.Artifact, nil
		}
	}
	return nil, fmt.Errorf("rule %q not declared", name)
}
