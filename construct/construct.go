// Package construct provides the declaration substrate for composing
// CloudFormation resources: a tree of identified scopes rooted at a Stack,
// with deterministic logical ID generation derived from each construct's
// path. Synthesis is a single pass over declarations made at construction
// time; there is no runtime behavior.
package construct

import (
	"fmt"

	xerrors "github.com/harborline/pr-validator/internal/errors"
)

// Scope is anything a construct can be declared within. Constructs, stacks,
// and resources all satisfy it.
type Scope interface {
	Node() *Node
}

// Node carries a construct's identity and position in the tree. IDs are
// unique within their parent scope; registering a second child under the
// same ID fails rather than silently diverging.
type Node struct {
	id       string
	scope    Scope
	children map[string]Scope
}

// ID returns the construct's identifier within its parent scope.
func (n *Node) ID() string { return n.id }

// Scope returns the parent scope, or nil for a root.
func (n *Node) Scope() Scope { return n.scope }

func (n *Node) addChild(id string, child Scope) error {
	if _, ok := n.children[id]; ok {
		return fmt.Errorf("%w: %q under %q", xerrors.ErrDuplicateConstructID, id, n.id)
	}
	n.children[id] = child
	return nil
}

// Path returns the construct IDs from just below the enclosing stack down to
// this node. The enclosing stack's own name is not part of the path.
func (n *Node) Path() []string {
	var reversed []string
	for node := n; node != nil; {
		parent := node.Scope()
		if parent == nil {
			break // root stack, excluded from the path
		}
		reversed = append(reversed, node.id)
		node = parent.Node()
	}

	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

// Construct is the base declarative unit. Composite constructs embed or wrap
// one and declare their resources against it.
type Construct struct {
	node *Node
}

// New creates a construct under the given scope and registers it there.
func New(scope Scope, id string) (*Construct, error) {
	if id == "" {
		return nil, xerrors.ErrConstructIDRequired
	}

	c := &Construct{
		node: &Node{
			id:       id,
			scope:    scope,
			children: map[string]Scope{},
		},
	}
	if scope != nil {
		if err := scope.Node().addChild(id, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Node returns the construct's tree node.
func (c *Construct) Node() *Node { return c.node }

// StackOf walks up the scope chain to the enclosing stack.
func StackOf(scope Scope) (*Stack, error) {
	for s := scope; s != nil; {
		if stack, ok := s.(*Stack); ok {
			return stack, nil
		}
		s = s.Node().Scope()
	}
	return nil, xerrors.ErrNoEnclosingStack
}
