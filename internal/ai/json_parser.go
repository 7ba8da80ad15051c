package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var (
	// Matches ```json\n{...}\n```, ```{...}``` and similar
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json|javascript|js)?\\s*\\n?(.*?)\\n?```")

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// ParseResult is the outcome of a tolerant JSON parse
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// ParseOptions configures JSON parsing behavior
type ParseOptions struct {
	Context      string // Prefix for error messages
	MaxInputSize int    // Maximum input size in bytes (0 = default 1MB)
	Logger       *slog.Logger
}

const defaultMaxInputSize = 1 << 20

// Parse decodes model output into T. Models wrap JSON in code fences, add
// prose around it, or leave trailing commas; each of these is tried in turn:
//
//  1. Direct parse
//  2. Strip code fences
//  3. Remove trailing commas and comments
//  4. Extract the first balanced object or array from mixed content
func Parse[T any](text string, opts ...ParseOptions) ParseResult[T] {
	var options ParseOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.MaxInputSize == 0 {
		options.MaxInputSize = defaultMaxInputSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(text) > options.MaxInputSize {
		return parseError[T](fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), options.MaxInputSize),
			truncate(text, 1000), options.Context)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T]("empty input", text, options.Context)
	}

	candidates := []string{trimmed}
	unfenced := removeCodeFences(trimmed)
	candidates = append(candidates, unfenced)
	cleaned := cleanupJSON(unfenced)
	candidates = append(candidates, cleaned)
	if extracted := extractJSON(cleaned); extracted != "" {
		candidates = append(candidates, extracted)
	}

	var firstErr error
	for i, candidate := range candidates {
		if i > 0 && candidate == candidates[i-1] {
			continue
		}
		var data T
		err := json.Unmarshal([]byte(candidate), &data)
		if err == nil {
			return ParseResult[T]{Success: true, Data: data, OriginalText: text}
		}
		if firstErr == nil {
			firstErr = err
			logger.Debug("direct JSON parse failed, trying cleanup strategies",
				slog.String("error", err.Error()),
				slog.String("preview", truncate(text, 100)),
				slog.String("context", options.Context))
		}
	}

	return parseError[T]("all JSON parsing strategies failed", text, options.Context)
}

// removeCodeFences strips the first markdown code fence, or backticks
// wrapping the whole text
func removeCodeFences(text string) string {
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "`") && strings.HasSuffix(text, "`") && len(text) > 1 {
		return strings.TrimSpace(strings.Trim(text, "`"))
	}
	return text
}

// cleanupJSON removes trailing commas and comments. Single quotes are left
// alone since they appear legitimately inside descriptions.
func cleanupJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON returns the first balanced {...} or [...] in text, skipping
// brackets inside strings. Returns "" if none is found.
func extractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}

	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func parseError[T any](message, text, context string) ParseResult[T] {
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{Error: message, OriginalText: text}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
