package construct

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/harborline/pr-validator/cfn"
)

// maxLogicalIDLength is the CloudFormation limit of 255 characters, minus the
// 8 character uniqueness suffix.
const maxLogicalIDLength = 247

// Resource declares a single CloudFormation resource within a scope. Its
// logical ID is derived from the construct path, so the same path always
// yields the same ID across synthesis runs.
type Resource struct {
	*Construct

	stack     *Stack
	logicalID string
}

// NewResource declares a resource of the given CloudFormation type under the
// scope and registers it with the enclosing stack's template.
func NewResource(scope Scope, id, resourceType string, properties map[string]any) (*Resource, error) {
	base, err := New(scope, id)
	if err != nil {
		return nil, err
	}

	stack, err := StackOf(base)
	if err != nil {
		return nil, err
	}

	r := &Resource{
		Construct: base,
		stack:     stack,
		logicalID: logicalID(base.Node().Path()),
	}
	if err := stack.template.AddResource(r.logicalID, &cfn.Resource{
		Type:       resourceType,
		Properties: properties,
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// LogicalID returns the resource's logical ID within the stack template.
func (r *Resource) LogicalID() string { return r.logicalID }

// Ref returns a Ref intrinsic pointing at this resource.
func (r *Resource) Ref() map[string]any { return cfn.Ref(r.logicalID) }

// GetAtt returns an Fn::GetAtt intrinsic for an attribute of this resource.
func (r *Resource) GetAtt(attribute string) map[string]any {
	return cfn.GetAtt(r.logicalID, attribute)
}

// DependOn adds an explicit ordering dependency on another resource.
func (r *Resource) DependOn(other *Resource) {
	declared := r.stack.template.Resources[r.logicalID]
	declared.DependsOn = append(declared.DependsOn, other.logicalID)
}

// logicalID builds a CloudFormation logical ID from a construct path: the
// alphanumeric characters of each path component, followed by an 8 character
// hash of the full path to keep same-named constructs in different scopes
// distinct.
func logicalID(path []string) string {
	joined := strings.Join(path, "/")
	sum := sha256.Sum256([]byte(joined))
	suffix := strings.ToUpper(hex.EncodeToString(sum[:4]))

	var b strings.Builder
	for _, component := range path {
		for _, r := range component {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				b.WriteRune(r)
			}
		}
	}

	id := b.String()
	if len(id) > maxLogicalIDLength {
		id = id[:maxLogicalIDLength]
	}
	return id + suffix
}
