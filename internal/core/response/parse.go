// Package response extracts structured sections from model output.
// This is part of the Functional Core - no I/O, only pure functions.
//
// Parsing is tolerant: the text generator is not guaranteed to follow the
// requested format, so missing sections are absent rather than errors.
package response

import (
	"regexp"
	"strings"
)

// PatchSectionTitle is the section whose content holds the diff.
const PatchSectionTitle = "Patch"

var (
	headingRe   = regexp.MustCompile(`(?m)^#[ \t]+(.*)$`)
	diffFenceRe = regexp.MustCompile("(?s)```diff[^\\n]*\\n(.*?)```")
)

// PatchSection is the decomposed "Patch" section.
type PatchSection struct {
	DiffCode string
}

// Response is a parsed model answer.
type Response struct {
	// Sections maps each level-one heading title to its trimmed content.
	// The Patch section is kept only in Patch.
	Sections map[string]string
	Patch    *PatchSection
}

// Has reports whether a section with the given title was present.
func (r Response) Has(title string) bool {
	if strings.EqualFold(title, PatchSectionTitle) {
		return r.Patch != nil
	}
	_, ok := r.Sections[title]
	return ok
}

// DiffCode returns the extracted diff, or "" when there is none.
func (r Response) DiffCode() string {
	if r.Patch == nil {
		return ""
	}
	return r.Patch.DiffCode
}

// Parse splits raw on "# Title" headings. Text before the first heading is
// dropped. When a title repeats, the last occurrence wins.
func Parse(raw string) Response {
	resp := Response{Sections: map[string]string{}}

	locs := headingRe.FindAllStringSubmatchIndex(raw, -1)
	for i, loc := range locs {
		title := strings.TrimSpace(raw[loc[2]:loc[3]])
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(raw[loc[1]:end])

		if strings.EqualFold(title, PatchSectionTitle) {
			resp.Patch = &PatchSection{DiffCode: extractDiff(content)}
			continue
		}
		resp.Sections[title] = content
	}

	return resp
}

func extractDiff(content string) string {
	m := diffFenceRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
