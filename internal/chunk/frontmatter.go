package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterPattern matches a leading "---" YAML block.
var frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n*`)

// ParseFrontMatter splits a leading YAML front matter block from content.
// Scalar values are returned as strings; lists are joined with ", ". A
// document without front matter returns a nil map and content unchanged.
func ParseFrontMatter(content string) (map[string]string, string, error) {
	m := frontmatterPattern.FindStringSubmatchIndex(content)
	if m == nil {
		return nil, content, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(content[m[2]:m[3]]), &raw); err != nil {
		return nil, content, fmt.Errorf("invalid front matter: %w", err)
	}

	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			meta[strings.ToLower(k)] = strings.Join(parts, ", ")
		case map[string]any:
			// nested blocks carry nothing the chunker uses
		default:
			meta[strings.ToLower(k)] = fmt.Sprint(val)
		}
	}
	return meta, content[m[1]:], nil
}
