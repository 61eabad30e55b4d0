package prompt

import (
	"fmt"
	"strings"
)

// validationBindings stands in for a real task during validation renders.
var validationBindings = map[string]string{
	KeyRepo:             "",
	KeyProblemStatement: "",
	KeyTestPatch:        "",
}

// MissingPlaceholderError reports a required coder key the template never uses.
type MissingPlaceholderError struct {
	Names []string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("prompt does not reference required placeholder(s): %s", strings.Join(e.Names, ", "))
}

// ValidateCoderPrompt checks that tmpl renders with only the coder keys bound
// and that it references every one of them.
func ValidateCoderPrompt(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("prompt is empty")
	}

	if _, err := Render(tmpl, validationBindings); err != nil {
		return err
	}

	used, err := Placeholders(tmpl)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(used))
	for _, name := range used {
		present[name] = true
	}

	var missing []string
	for _, key := range RequiredCoderKeys {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &MissingPlaceholderError{Names: missing}
	}
	return nil
}

// CoderBindings builds the bindings for a coder prompt.
func CoderBindings(repo, problemStatement, testPatch string) map[string]string {
	return map[string]string{
		KeyRepo:             repo,
		KeyProblemStatement: problemStatement,
		KeyTestPatch:        testPatch,
	}
}
