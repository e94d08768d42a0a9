package services

import (
	"path/filepath"
	"strings"

	"github.com/vaultrag/bridge/models"
)

const (
	// AnswerDelimiter separates a document's header region from the
	// rendered answers below it.
	AnswerDelimiter = "---"

	// PlaceholderAnswer stands in when a response file carries no answer.
	PlaceholderAnswer = "No answer found."

	// NoSourcesLine is rendered when a response carries no sources.
	NoSourcesLine = "No sources found."
)

// MergeAnswer inserts block directly below the document's header region.
// The header is everything before the first delimiter line and is
// preserved verbatim; everything after it (including any further
// delimiters) is rejoined below the new block untouched. A document with
// no delimiter is all header.
func MergeAnswer(current, block string) string {
	header := current
	rest := ""
	if idx, n := delimiterIndex(current); idx >= 0 {
		header = current[:idx]
		rest = current[idx+n:]
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(header))
	sb.WriteString("\n")
	sb.WriteString(AnswerDelimiter)
	sb.WriteString("\n\n")
	sb.WriteString(block)
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(rest))
	return sb.String()
}

// delimiterIndex locates the first delimiter occupying a line of its own,
// returning the offset of the match (including its surrounding newlines)
// and the match length, or -1 when the document has no delimiter line. A
// "---" embedded mid-line never splits the document.
func delimiterIndex(text string) (start, length int) {
	if text == AnswerDelimiter {
		return 0, len(AnswerDelimiter)
	}
	if strings.HasPrefix(text, AnswerDelimiter+"\n") {
		return 0, len(AnswerDelimiter) + 1
	}
	if idx := strings.Index(text, "\n"+AnswerDelimiter+"\n"); idx >= 0 {
		return idx, len(AnswerDelimiter) + 2
	}
	if strings.HasSuffix(text, "\n"+AnswerDelimiter) {
		return len(text) - len(AnswerDelimiter) - 1, len(AnswerDelimiter) + 1
	}
	return -1, 0
}

// RenderAnswerBlock formats a question and its result as the markdown
// block that gets merged into the target document. Each source becomes a
// wiki link built from its base name with the extension stripped.
func RenderAnswerBlock(question string, result models.ResultRecord) string {
	answer := result.Answer
	if answer == "" {
		answer = PlaceholderAnswer
	}

	var sb strings.Builder
	sb.WriteString("## ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(answer)
	sb.WriteString("\n\n### Sources\n\n")

	if len(result.Sources) == 0 {
		sb.WriteString(NoSourcesLine)
		return sb.String()
	}
	for i, src := range result.Sources {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- [[")
		sb.WriteString(sourceLinkName(src))
		sb.WriteString("]]")
	}
	return sb.String()
}

// sourceLinkName reduces a source path to its base name without extension.
func sourceLinkName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
