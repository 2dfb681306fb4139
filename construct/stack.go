package construct

import (
	"github.com/harborline/pr-validator/cfn"
	xerrors "github.com/harborline/pr-validator/internal/errors"
)

// Stack is the root scope. Resources declared anywhere beneath it register
// into its CloudFormation template.
type Stack struct {
	node     *Node
	template *cfn.Template
}

// NewStack creates a root stack with the given name.
func NewStack(name, description string) (*Stack, error) {
	if name == "" {
		return nil, xerrors.ErrStackNameRequired
	}
	return &Stack{
		node: &Node{
			id:       name,
			children: map[string]Scope{},
		},
		template: cfn.NewTemplate(description),
	}, nil
}

// Node returns the stack's tree node.
func (s *Stack) Node() *Node { return s.node }

// Name returns the stack name.
func (s *Stack) Name() string { return s.node.id }

// AddParameter declares a deploy-time template parameter on the stack.
func (s *Stack) AddParameter(name string, parameter cfn.Parameter) error {
	return s.template.AddParameter(name, parameter)
}

// AddOutput declares a template output on the stack.
func (s *Stack) AddOutput(name string, output cfn.Output) error {
	return s.template.AddOutput(name, output)
}

// Synth returns the assembled template. Synthesis is deterministic: the same
// sequence of declarations always produces the same template, so rendering it
// twice yields identical bytes.
func (s *Stack) Synth() *cfn.Template {
	return s.template
}
