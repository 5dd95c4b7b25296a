package condition

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stevehiehn/formwizard/internal/form"
)

// Built-in plugin ids.
const (
	NodeTypeID    = "node_type"
	RequestPathID = "request_path"
)

// NodeType matches nodes of the selected bundles. It needs a "node" context.
type NodeType struct {
	available map[string]string
	bundles   []string
	negate    bool
	mapping   map[string]string
}

func newNodeType(available map[string]string, config map[string]any) *NodeType {
	p := &NodeType{available: available, mapping: map[string]string{}}
	p.bundles = stringList(config["bundles"])
	p.negate = truthy(config["negate"])
	return p
}

// PluginID returns NodeTypeID.
func (p *NodeType) PluginID() string { return NodeTypeID }

// Configuration returns the selected bundles and the negate flag.
func (p *NodeType) Configuration() map[string]any {
	return map[string]any{
		"bundles": append([]string{}, p.bundles...),
		"negate":  p.negate,
	}
}

// Bundles returns the selected bundles.
func (p *NodeType) Bundles() []string { return append([]string{}, p.bundles...) }

// ContextDefinitions declares the node slot.
func (p *NodeType) ContextDefinitions() map[string]ContextDefinition {
	return map[string]ContextDefinition{"node": {DataType: "entity:node", Label: "Node"}}
}

// ContextMapping returns a copy of the slot-to-context mapping.
func (p *NodeType) ContextMapping() map[string]string {
	out := make(map[string]string, len(p.mapping))
	for k, v := range p.mapping {
		out[k] = v
	}
	return out
}

// SetContextMapping replaces the slot-to-context mapping.
func (p *NodeType) SetContextMapping(mapping map[string]string) {
	p.mapping = map[string]string{}
	for k, v := range mapping {
		p.mapping[k] = v
	}
}

func (p *NodeType) BuildConfigurationForm(_ context.Context, f *form.Form, st *form.State) error {
	f.Add(form.Element{
		Name:     "bundles",
		Type:     form.TypeCheckboxes,
		Title:    "Node bundles",
		Options:  p.available,
		Default:  p.Bundles(),
		Required: true,
	})
	f.Add(form.Element{
		Name:    "negate",
		Type:    form.TypeCheckbox,
		Title:   "Negate the condition",
		Default: p.negate,
	})
	for _, el := range ContextMappingElements(p, st) {
		f.Add(el)
	}
	return nil
}

func (p *NodeType) ValidateConfigurationForm(_ context.Context, st *form.State) error {
	bundles := stringList(st.Value("bundles"))
	if len(bundles) == 0 {
		st.SetError("bundles", "Select at least one bundle.")
		return nil
	}
	if len(p.available) == 0 {
		return nil
	}
	for _, b := range bundles {
		if _, ok := p.available[b]; !ok {
			st.SetError("bundles", fmt.Sprintf("%q is not a known bundle.", b))
			return nil
		}
	}
	return nil
}

func (p *NodeType) SubmitConfigurationForm(_ context.Context, st *form.State) error {
	bundles := stringList(st.Value("bundles"))
	sort.Strings(bundles)
	p.bundles = bundles
	p.negate = truthy(st.Value("negate"))
	return nil
}

// RequestPath matches request paths, one pattern per line.
type RequestPath struct {
	pages  string
	negate bool
}

func newRequestPath(config map[string]any) *RequestPath {
	pages, _ := config["pages"].(string)
	return &RequestPath{pages: pages, negate: truthy(config["negate"])}
}

// PluginID returns RequestPathID.
func (p *RequestPath) PluginID() string { return RequestPathID }

// Configuration returns the path patterns and the negate flag.
func (p *RequestPath) Configuration() map[string]any {
	return map[string]any{"pages": p.pages, "negate": p.negate}
}

func (p *RequestPath) BuildConfigurationForm(_ context.Context, f *form.Form, _ *form.State) error {
	f.Add(form.Element{
		Name:        "pages",
		Type:        form.TypeTextarea,
		Title:       "Pages",
		Description: "One path per line, each starting with a slash. '*' is a wildcard.",
		Default:     p.pages,
		Required:    true,
	})
	f.Add(form.Element{
		Name:    "negate",
		Type:    form.TypeCheckbox,
		Title:   "Negate the condition",
		Default: p.negate,
	})
	return nil
}

func (p *RequestPath) ValidateConfigurationForm(_ context.Context, st *form.State) error {
	for _, line := range strings.Split(st.StringValue("pages"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "/") {
			st.SetError("pages", fmt.Sprintf("The path %q must start with a slash.", line))
			return nil
		}
	}
	return nil
}

func (p *RequestPath) SubmitConfigurationForm(_ context.Context, st *form.State) error {
	var lines []string
	for _, line := range strings.Split(st.StringValue("pages"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	p.pages = strings.Join(lines, "\n")
	p.negate = truthy(st.Value("negate"))
	return nil
}

// stringList accepts the shapes a list arrives in: []string from Go callers,
// []any from JSON, and a map of checked checkboxes.
func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []string:
		out = append(out, t...)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		for k, checked := range t {
			if truthy(checked) {
				out = append(out, k)
			}
		}
		sort.Strings(out)
	case string:
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "1" || t == "true" || t == "on"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}
