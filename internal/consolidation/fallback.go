package consolidation

// FallbackCode is the placeholder used for a step that has no code
func FallbackCode(action string) string {
	return `// TODO: Implement "` + commentText(action) + `" step`
}

// FallbackForError is substituted when code generation for a step failed
func FallbackForError(action string, err error) string {
	code := FallbackCode(action)
	if err != nil {
		code += "\n// Code generation failed: " + commentText(err.Error())
	}
	return code
}
