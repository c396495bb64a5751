package tools

import (
	"context"
)

// Category names one family of side effects
type Category string

const (
	Filesystem  Category = "filesystem"
	Spreadsheet Category = "spreadsheet"
	Web         Category = "web"
	Shell       Category = "shell"
)

// Categories lists every category a complete registry must provide
var Categories = []Category{Filesystem, Spreadsheet, Web, Shell}

// ParamType is the type tag advertised for a parameter in the catalog
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
	TypeAny     ParamType = "any"
)

// Tool defines the interface for all adapter categories.
type Tool interface {
	Name() Category
	Description() string
	Operations() []Operation
}

// Func performs one operation. A non-nil Output is kept for the log even
// when an error is returned.
type Func func(ctx context.Context, args Args) (Output, error)

// Operation is one named capability of a Tool
type Operation struct {
	Name        string
	Description string
	Parameters  []Parameter
	Run         Func
}

// Parameter describes one named input of an operation
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// Output is the structured result of an operation. It always carries a
// "success" flag.
type Output map[string]any

func succeed(fields Output) Output {
	if fields == nil {
		fields = Output{}
	}
	fields["success"] = true
	return fields
}

// Succeeded reports the output's success flag
func (o Output) Succeeded() bool {
	ok, _ := o["success"].(bool)
	return ok
}

func required(name string, t ParamType, desc string) Parameter {
	return Parameter{Name: name, Type: t, Required: true, Description: desc}
}

func optional(name string, t ParamType, desc string) Parameter {
	return Parameter{Name: name, Type: t, Description: desc}
}
