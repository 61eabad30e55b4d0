// Package prompt renders agent, judge, and evolver prompts.
// This is part of the Functional Core - no I/O, only pure functions.
//
// Templates use text/template syntax with named keys ({{.problem_statement}}).
// Rendering fails when the template references a key with no binding or when
// it uses a tag the template language does not know.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"
	"text/template/parse"
)

// Required coder placeholders. Every coder prompt must reference all three.
const (
	KeyRepo             = "repo"
	KeyProblemStatement = "problem_statement"
	KeyTestPatch        = "test_patch"
)

// Judge placeholders.
const (
	KeyPredictedPatch = "predicted_patch"
	KeyAgentPatchLog  = "agent_patch_log"
	KeyReferencePatch = "patch"
)

// Evolver placeholders.
const (
	KeyFeedback    = "error_analyzer_analysis"
	KeyLineage     = "subsequent_agent_codes"
	KeyRecurring   = "recurring_improvements"
	KeySlotList    = "slot_list"
	KeyCurrentSlot = "current_prompts"
)

// RequiredCoderKeys lists the placeholders a coder prompt must bind.
var RequiredCoderKeys = []string{KeyRepo, KeyProblemStatement, KeyTestPatch}

// UnboundPlaceholderError reports a placeholder with no binding.
type UnboundPlaceholderError struct {
	Name string
}

func (e *UnboundPlaceholderError) Error() string {
	return fmt.Sprintf("unbound placeholder %q", e.Name)
}

// TemplateSyntaxError reports an unparsable template or an unknown tag.
type TemplateSyntaxError struct {
	Err error
}

func (e *TemplateSyntaxError) Error() string {
	return fmt.Sprintf("template syntax: %v", e.Err)
}

func (e *TemplateSyntaxError) Unwrap() error { return e.Err }

func compile(tmpl string) (*template.Template, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, &TemplateSyntaxError{Err: err}
	}
	return t, nil
}

// Render substitutes bindings into tmpl. Bindings not referenced by the
// template are ignored.
func Render(tmpl string, bindings map[string]string) (string, error) {
	t, err := compile(tmpl)
	if err != nil {
		return "", err
	}

	for _, name := range placeholders(t) {
		if _, ok := bindings[name]; !ok {
			return "", &UnboundPlaceholderError{Name: name}
		}
	}

	data := make(map[string]string, len(bindings))
	for k, v := range bindings {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", &TemplateSyntaxError{Err: err}
	}
	return buf.String(), nil
}

// Placeholders returns the sorted, distinct keys referenced by tmpl.
func Placeholders(tmpl string) ([]string, error) {
	t, err := compile(tmpl)
	if err != nil {
		return nil, err
	}
	return placeholders(t), nil
}

func placeholders(t *template.Template) []string {
	seen := map[string]struct{}{}
	for _, tt := range t.Templates() {
		if tt.Tree != nil {
			walk(tt.Tree.Root, seen)
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func walk(node parse.Node, seen map[string]struct{}) {
	switch n := node.(type) {
	case nil:
		return
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			walk(child, seen)
		}
	case *parse.ActionNode:
		walk(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			walk(cmd, seen)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			walk(arg, seen)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			seen[n.Ident[0]] = struct{}{}
		}
	case *parse.VariableNode:
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			seen[n.Ident[1]] = struct{}{}
		}
	case *parse.ChainNode:
		walk(n.Node, seen)
	case *parse.IfNode:
		walkBranch(&n.BranchNode, seen)
	case *parse.RangeNode:
		walkBranch(&n.BranchNode, seen)
	case *parse.WithNode:
		walkBranch(&n.BranchNode, seen)
	case *parse.TemplateNode:
		walk(n.Pipe, seen)
	}
}

func walkBranch(b *parse.BranchNode, seen map[string]struct{}) {
	walk(b.Pipe, seen)
	walk(b.List, seen)
	walk(b.ElseList, seen)
}
