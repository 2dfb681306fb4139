// Package buildspec parses CodeBuild buildspec documents and reports
// structural problems. The validator construct never reads buildspec
// contents; this package backs the optional lint command only.
package buildspec

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Buildspec is the subset of the buildspec format the linter understands:
// the version marker, the named phases with their command sequences, and the
// artifact file list.
type Buildspec struct {
	Version   Version          `yaml:"version"`
	Phases    map[string]Phase `yaml:"phases"`
	Artifacts *Artifacts       `yaml:"artifacts"`
}

// Version is the buildspec version marker. Buildspecs write it both quoted
// and bare (version: 0.2 is a YAML float), so it decodes from any scalar.
type Version string

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	*v = Version(node.Value)
	return nil
}

// Phase is one build phase, such as install or build.
type Phase struct {
	RunAs    string   `yaml:"run-as"`
	Commands []string `yaml:"commands"`
	Finally  []string `yaml:"finally"`
}

// Artifacts lists the files retained after the build.
type Artifacts struct {
	Files         []string `yaml:"files"`
	BaseDirectory string   `yaml:"base-directory"`
	Name          string   `yaml:"name"`
}

// Problem is a single lint finding.
type Problem struct {
	Path    string // document location, e.g. phases.build
	Message string
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return fmt.Sprintf("%s: %s", p.Path, p.Message)
}

// Parse reads a buildspec document.
func Parse(r io.Reader) (*Buildspec, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read buildspec: %w", err)
	}

	var spec Buildspec
	if err := yaml.Unmarshal(body, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse buildspec: %w", err)
	}
	return &spec, nil
}

// ParseFile reads a buildspec document from disk.
func ParseFile(path string) (*Buildspec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buildspec %s: %w", path, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	return Parse(f)
}

// Lint reports structural problems with the buildspec. An empty result means
// the document looks deployable; it does not guarantee the commands succeed.
func (b *Buildspec) Lint() []Problem {
	var problems []Problem

	switch b.Version {
	case "":
		problems = append(problems, Problem{Path: "version", Message: "missing required key"})
	case "0.1", "0.2":
		// supported
	default:
		problems = append(problems, Problem{
			Path:    "version",
			Message: fmt.Sprintf("unrecognized version %q, expected 0.1 or 0.2", string(b.Version)),
		})
	}

	if len(b.Phases) == 0 {
		problems = append(problems, Problem{Path: "phases", Message: "no phases defined"})
	}
	for name, phase := range b.Phases {
		if !knownPhase(name) {
			problems = append(problems, Problem{
				Path:    "phases." + name,
				Message: "unknown phase name",
			})
		}
		if len(phase.Commands) == 0 && len(phase.Finally) == 0 {
			problems = append(problems, Problem{
				Path:    "phases." + name,
				Message: "phase has no commands",
			})
		}
	}

	if b.Artifacts != nil && len(b.Artifacts.Files) == 0 {
		problems = append(problems, Problem{
			Path:    "artifacts.files",
			Message: "artifacts declared without any files",
		})
	}

	return problems
}

func knownPhase(name string) bool {
	switch name {
	case "install", "pre_build", "build", "post_build":
		return true
	}
	return false
}
