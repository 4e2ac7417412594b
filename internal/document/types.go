package document

import (
	"fmt"
	"strings"

	"github.com/agentx-labs/capreg/internal/report"
)

// ComponentType is the discriminator for a capability document.
type ComponentType string

// ComponentType values.
const (
	TypeAgent       ComponentType = "agent"
	TypeSkill       ComponentType = "skill"
	TypeKnowledge   ComponentType = "knowledge"
	TypeWorkflow    ComponentType = "workflow"
	TypeBlueprint   ComponentType = "blueprint"
	TypeAttestation ComponentType = "attestation"
	TypeContract    ComponentType = "contract"
	TypeIdentity    ComponentType = "identity"
	TypeProtocol    ComponentType = "protocol"
	TypeRule        ComponentType = "rule"
	TypeTemplate    ComponentType = "template"
)

// ValidTypes contains every component type in declaration order.
var ValidTypes = []ComponentType{
	TypeAgent,
	TypeSkill,
	TypeKnowledge,
	TypeWorkflow,
	TypeBlueprint,
	TypeAttestation,
	TypeContract,
	TypeIdentity,
	TypeProtocol,
	TypeRule,
	TypeTemplate,
}

// UnknownTypeError is returned for a type string outside ValidTypes.
type UnknownTypeError struct {
	Given string
}

func (e *UnknownTypeError) Error() string {
	names := make([]string, len(ValidTypes))
	for i, t := range ValidTypes {
		names[i] = string(t)
	}
	return fmt.Sprintf("unknown component type %q (valid types: %s)", e.Given, strings.Join(names, ", "))
}

func (e *UnknownTypeError) Unwrap() error { return report.ErrUnknownComponentType }

// ParseType converts a user-supplied string to a ComponentType. Plural
// directory names ("skills") and surrounding whitespace are accepted.
func ParseType(s string) (ComponentType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, t := range ValidTypes {
		if name == string(t) || name == t.Plural() {
			return t, nil
		}
	}
	return "", &UnknownTypeError{Given: s}
}

// Plural returns the conventional root directory name for the type.
func (t ComponentType) Plural() string {
	switch t {
	case TypeKnowledge:
		return "knowledge"
	case TypeIdentity:
		return "identities"
	default:
		return string(t) + "s"
	}
}

func (t ComponentType) String() string { return string(t) }
