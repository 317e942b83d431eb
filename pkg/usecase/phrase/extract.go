package phrase

// extractJSONBlock returns the first balanced {...} block in text. Braces inside
// JSON strings are ignored.
func extractJSONBlock(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

// ExtractJSONBlockForTest is a test helper that exposes extractJSONBlock
func ExtractJSONBlockForTest(text string) (string, bool) {
	return extractJSONBlock(text)
}
