package client

type Path string

const (
	ModelCRUDPath             Path = "models"
	ModelURIsPath             Path = "modeluris"
	ModelElementPath          Path = "modelelement"
	ClosePath                 Path = "close"
	SavePath                  Path = "save"
	SaveAllPath               Path = "saveall"
	ValidationPath            Path = "validation"
	ValidationConstraintsPath Path = "validation/constraints"
	TypeSchemaPath            Path = "schema/typeschema"
	UISchemaPath              Path = "schema/uischema"
	ServerConfigurePath       Path = "server/configure"
	ServerPingPath            Path = "server/ping"
	EditPath                  Path = "edit"
	UndoPath                  Path = "undo"
	RedoPath                  Path = "redo"
	SubscriptionPath          Path = "subscribe"
)

// APIEndpoint is the path prefix of the v1 API on a model server.
const APIEndpoint = "/api/v1"
