package tools

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// Catalog describes every category and operation a registry offers.
	// It is a flat description for prompt building and API clients, not a
	// schema language.
	Catalog []CategoryInfo

	// CategoryInfo describes one registered tool
	CategoryInfo struct {
		Name        Category        `json:"name"`
		Description string          `json:"description"`
		Aliases     []string        `json:"aliases,omitempty"`
		Operations  []OperationInfo `json:"operations"`
	}

	// OperationInfo describes one operation and its parameters
	OperationInfo struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Parameters  []Parameter `json:"parameters"`
	}
)

// Catalog returns the description of every registered operation
func (r *Registry) Catalog() Catalog {
	res := make(Catalog, 0, len(r.order))
	for _, cat := range r.order {
		t := r.tools[cat]
		info := CategoryInfo{
			Name:        cat,
			Description: t.Description(),
			Aliases:     aliasesOf(cat),
		}
		for _, op := range t.Operations() {
			info.Operations = append(info.Operations, OperationInfo{
				Name:        op.Name,
				Description: op.Description,
				Parameters:  slices.Clone(op.Parameters),
			})
		}
		res = append(res, info)
	}
	return res
}

// Operation finds an operation's description by category and name
func (c Catalog) Operation(tool, action string) (OperationInfo, bool) {
	cat := Canonical(tool)
	for _, ci := range c {
		if ci.Name != cat {
			continue
		}
		for _, op := range ci.Operations {
			if op.Name == action {
				return op, true
			}
		}
	}
	return OperationInfo{}, false
}

// String renders the catalog as indented text suitable for a prompt
func (c Catalog) String() string {
	var b strings.Builder
	for _, ci := range c {
		fmt.Fprintf(&b, "- %s: %s\n", ci.Name, ci.Description)
		for _, op := range ci.Operations {
			fmt.Fprintf(&b, "  - %s: %s\n", op.Name, op.Description)
			for _, p := range op.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "    - %s (%s, %s)", p.Name, p.Type, req)
				if p.Description != "" {
					fmt.Fprintf(&b, ": %s", p.Description)
				}
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func aliasesOf(cat Category) []string {
	var res []string
	for alias, c := range aliases {
		if c == cat {
			res = append(res, alias)
		}
	}
	slices.Sort(res)
	return res
}
