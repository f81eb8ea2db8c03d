package consolidation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TagInputKind identifies the shape a raw tag value arrived in
type TagInputKind int

const (
	TagInputNone TagInputKind = iota
	TagInputJSONArray
	TagInputDelimited
	TagInputList
	TagInputObjects
	TagInputUnsupported
)

func (k TagInputKind) String() string {
	switch k {
	case TagInputNone:
		return "none"
	case TagInputJSONArray:
		return "json_array"
	case TagInputDelimited:
		return "delimited"
	case TagInputList:
		return "list"
	case TagInputObjects:
		return "objects"
	default:
		return "unsupported"
	}
}

// TagInput is the parsed form of a raw tag value. Err is set when a string
// looked like a JSON array but did not parse; Tags then holds the
// comma-split fallback.
type TagInput struct {
	Kind TagInputKind
	Tags []string
	Err  error
}

// Degraded reports whether parsing fell back or gave up
func (in TagInput) Degraded() bool {
	return in.Kind == TagInputUnsupported || in.Err != nil
}

// ParseTagInput classifies raw and extracts its tags. Accepted shapes are
// nil, a JSON array string, a comma separated string, []string, []any of
// strings or {name} objects, and []map[string]any. Anything else yields
// TagInputUnsupported with no tags.
func ParseTagInput(raw any) TagInput {
	switch v := raw.(type) {
	case nil:
		return TagInput{Kind: TagInputNone, Tags: []string{}}
	case string:
		return parseTagString(v)
	case *string:
		if v == nil {
			return TagInput{Kind: TagInputNone, Tags: []string{}}
		}
		return parseTagString(*v)
	case json.RawMessage:
		return parseTagString(string(v))
	case []byte:
		return parseTagString(string(v))
	case []string:
		tags := make([]string, 0, len(v))
		for _, s := range v {
			tags = appendTag(tags, s)
		}
		return TagInput{Kind: TagInputList, Tags: tags}
	case []map[string]any:
		tags := make([]string, 0, len(v))
		for _, m := range v {
			if name, ok := m["name"].(string); ok {
				tags = appendTag(tags, name)
			}
		}
		return TagInput{Kind: TagInputObjects, Tags: tags}
	case []any:
		kind := TagInputList
		if len(v) > 0 {
			kind = TagInputObjects
			for _, e := range v {
				if _, ok := e.(map[string]any); !ok {
					kind = TagInputList
					break
				}
			}
		}
		return TagInput{Kind: kind, Tags: coerceElements(v)}
	default:
		return TagInput{Kind: TagInputUnsupported, Tags: []string{}}
	}
}

func parseTagString(s string) TagInput {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return TagInput{Kind: TagInputNone, Tags: []string{}}
	}
	if strings.HasPrefix(trimmed, "[") {
		var elems []any
		if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
			return TagInput{
				Kind: TagInputDelimited,
				Tags: splitTags(trimmed),
				Err:  fmt.Errorf("parse tag array: %w", err),
			}
		}
		return TagInput{Kind: TagInputJSONArray, Tags: coerceElements(elems)}
	}
	return TagInput{Kind: TagInputDelimited, Tags: splitTags(trimmed)}
}

func coerceElements(elems []any) []string {
	tags := make([]string, 0, len(elems))
	for _, e := range elems {
		switch t := e.(type) {
		case nil:
		case string:
			tags = appendTag(tags, t)
		case map[string]any:
			if name, ok := t["name"].(string); ok {
				tags = appendTag(tags, name)
			}
		default:
			tags = appendTag(tags, fmt.Sprint(t))
		}
	}
	return tags
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tags = appendTag(tags, p)
	}
	return tags
}

// appendTag adds s trimmed and without leading "@"; empty segments are dropped
func appendTag(tags []string, s string) []string {
	s = strings.TrimLeft(strings.TrimSpace(s), "@")
	if s == "" {
		return tags
	}
	return append(tags, s)
}

// NormalizeTags returns the ordered tag list for raw. Duplicates are kept.
func NormalizeTags(raw any) []string {
	return ParseTagInput(raw).Tags
}

// FormatTag returns tag with exactly one leading "@"
func FormatTag(tag string) string {
	return "@" + strings.TrimLeft(strings.TrimSpace(tag), "@")
}

// tagMetadata renders the `{ tag: [...] }` argument, or "" for no tags
func tagMetadata(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = quoteJS(FormatTag(t))
	}
	return "{ tag: [" + strings.Join(quoted, ", ") + "] }"
}

// EncodeTags stores tags as a JSON array string
func EncodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}
