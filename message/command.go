package message

// CommandEClass identifies serialized commands to the server.
const CommandEClass = "http://www.eclipse.org/emfcloud/modelserver/command#//Command"

// Well-known command types understood by the server. Servers may register
// additional custom types.
const (
	SetCommandType      = "set"
	AddCommandType      = "add"
	RemoveCommandType   = "remove"
	CompoundCommandType = "compound"
)

// Command is the payload of an edit request.
type Command struct {
	EClass       string            `json:"eClass,omitempty"`
	Type         string            `json:"type"`
	Owner        any               `json:"owner,omitempty"`
	Feature      string            `json:"feature,omitempty"`
	Indices      []int             `json:"indices,omitempty"`
	DataValues   []any             `json:"dataValues,omitempty"`
	ObjectValues []any             `json:"objectValues,omitempty"`
	ObjectsToAdd []any             `json:"objectsToAdd,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	Commands     []*Command        `json:"commands,omitempty"`
}

// NewCommand returns a command of a custom type understood by a server
// extension.
func NewCommand(commandType string, properties map[string]string) *Command {
	return &Command{
		EClass:     CommandEClass,
		Type:       commandType,
		Properties: properties,
	}
}

// NewSetCommand sets feature on owner to values.
func NewSetCommand(owner any, feature string, values ...any) *Command {
	return &Command{
		EClass:     CommandEClass,
		Type:       SetCommandType,
		Owner:      owner,
		Feature:    feature,
		DataValues: values,
	}
}

// NewAddCommand appends values to the list feature of owner.
func NewAddCommand(owner any, feature string, values ...any) *Command {
	return &Command{
		EClass:       CommandEClass,
		Type:         AddCommandType,
		Owner:        owner,
		Feature:      feature,
		ObjectsToAdd: values,
	}
}

// NewRemoveCommand removes the elements at indices from the list feature of
// owner.
func NewRemoveCommand(owner any, feature string, indices ...int) *Command {
	return &Command{
		EClass:  CommandEClass,
		Type:    RemoveCommandType,
		Owner:   owner,
		Feature: feature,
		Indices: indices,
	}
}

// NewCompoundCommand executes commands as a single undoable unit.
func NewCompoundCommand(commands ...*Command) *Command {
	return &Command{
		EClass:   CommandEClass,
		Type:     CompoundCommandType,
		Commands: commands,
	}
}
