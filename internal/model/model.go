// Package model holds the descriptors graphbridge consumes from its two schema
// sources: the host platform's static route table and the per-tenant attribute
// metadata stored in the backing data store. Descriptors are plain data; all
// interpretation happens in the schema builders.
package model

// Route describes one registered HTTP route of the host platform.
type Route struct {
	// Method is the HTTP method the route is registered under.
	Method string `json:"method"`
	// Path is the route's path template, with {name} placeholders.
	Path string `json:"path"`
	// Namespace and MethodName label the route; the GraphQL field name is
	// derived from them (namespace + UpperFirst(methodName)).
	Namespace  string `json:"namespace"`
	MethodName string `json:"methodName"`

	Description string  `json:"description,omitempty"`
	Params      []Param `json:"params,omitempty"`

	// ResponseModels names the response model(s) the route may return.
	// A route declaring several models fans out into one field per model.
	ResponseModels []string `json:"responseModels"`

	// Weight is the route's declared complexity weight, used for list-shaped
	// fields. Zero means the default weight of 1.
	Weight int `json:"weight,omitempty"`

	// Internal marks mock/maintenance routes that never appear in the schema.
	Internal bool `json:"internal,omitempty"`
}

// Param describes one declared route parameter.
type Param struct {
	Name        string `json:"name"`
	Validator   string `json:"validator"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Model is a named response model: an ordered list of field rules.
type Model struct {
	Name  string `json:"name"`
	Rules []Rule `json:"rules,omitempty"`
	// Any marks an accepts-any-shape model, serialized as a single opaque
	// data field instead of typed rules.
	Any         bool   `json:"any,omitempty"`
	Description string `json:"description,omitempty"`
}

// Rule is one field rule of a response model. Types is union-like: the first
// resolvable entry wins when mapping to a GraphQL type.
type Rule struct {
	Name        string   `json:"name"`
	Types       []string `json:"types"`
	Array       bool     `json:"array,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Attribute lifecycle statuses as stored by the data store. Only available
// attributes are schema-visible.
const (
	AttributeStatusAvailable  = "available"
	AttributeStatusProcessing = "processing"
	AttributeStatusDeleting   = "deleting"
	AttributeStatusFailed     = "failed"
)

// Attribute scalar kinds.
const (
	AttributeTypeString   = "string"
	AttributeTypeInteger  = "integer"
	AttributeTypeFloat    = "double"
	AttributeTypeBoolean  = "boolean"
	AttributeTypeDatetime = "datetime"
	AttributeTypeEmail    = "email"
	AttributeTypeURL      = "url"
	AttributeTypeIP       = "ip"
	AttributeTypeEnum     = "enum"
)

// Attribute is one per-tenant, per-collection field definition. Attributes are
// transient: read fresh from the data store on every tenant-fragment rebuild,
// never cached on their own.
type Attribute struct {
	DatabaseID   string `json:"databaseId"`
	CollectionID string `json:"collectionId"`
	Key          string `json:"key"`
	Type         string `json:"type"`
	Array        bool   `json:"array,omitempty"`
	Required     bool   `json:"required,omitempty"`
	Default      any    `json:"default,omitempty"`
	Status       string `json:"status"`
}

// CollectionKey identifies a tenant collection.
type CollectionKey struct {
	DatabaseID   string
	CollectionID string
}
