// Package parser separates model reasoning from answer content in LLM streams.
package parser

import (
	"strings"

	"github.com/entrhq/webprobe/pkg/llm"
)

var (
	openTags  = []string{"<thinking>", "<think>"}
	closeTags = []string{"</thinking>", "</think>"}
)

// ReasoningParser splits streamed content into reasoning wrapped in
// <thinking> or <think> tags and the answer outside them. A tag may be split
// across chunks; the unresolved prefix is held back until the next Parse.
// Other markup, such as HTML quoted inside a JSON answer, passes through.
type ReasoningParser struct {
	pending     string
	inReasoning bool
}

// NewReasoningParser creates a parser in answer mode.
func NewReasoningParser() *ReasoningParser {
	return &ReasoningParser{}
}

// Parse consumes one content delta. Either return value may be nil.
func (p *ReasoningParser) Parse(content string) (reasoning, message *llm.StreamChunk) {
	if content == "" {
		return nil, nil
	}

	var thought, answer strings.Builder
	emit := func(text string) {
		if p.inReasoning {
			thought.WriteString(text)
		} else {
			answer.WriteString(text)
		}
	}

	s := p.pending + content
	p.pending = ""

	for s != "" {
		idx := strings.IndexByte(s, '<')
		if idx < 0 {
			emit(s)
			break
		}
		emit(s[:idx])
		rest := s[idx:]

		tags := openTags
		if p.inReasoning {
			tags = closeTags
		}

		if tag, ok := matchTag(rest, tags); ok {
			p.inReasoning = !p.inReasoning
			s = rest[len(tag):]
			continue
		}
		if isTagPrefix(rest, tags) {
			p.pending = rest
			break
		}

		emit("<")
		s = rest[1:]
	}

	return chunkOf(thought.String(), llm.ContentTypeThinking), chunkOf(answer.String(), llm.ContentTypeMessage)
}

// Flush returns content held back waiting for a tag to complete.
func (p *ReasoningParser) Flush() (reasoning, message *llm.StreamChunk) {
	text := p.pending
	p.pending = ""
	if p.inReasoning {
		return chunkOf(text, llm.ContentTypeThinking), nil
	}
	return nil, chunkOf(text, llm.ContentTypeMessage)
}

// InReasoning reports whether an opening tag has not been closed yet.
func (p *ReasoningParser) InReasoning() bool {
	return p.inReasoning
}

// Reset prepares the parser for a new stream.
func (p *ReasoningParser) Reset() {
	p.pending = ""
	p.inReasoning = false
}

func matchTag(s string, tags []string) (string, bool) {
	for _, tag := range tags {
		if strings.HasPrefix(s, tag) {
			return tag, true
		}
	}
	return "", false
}

func isTagPrefix(s string, tags []string) bool {
	for _, tag := range tags {
		if len(s) < len(tag) && strings.HasPrefix(tag, s) {
			return true
		}
	}
	return false
}

func chunkOf(text string, kind llm.ContentType) *llm.StreamChunk {
	if text == "" {
		return nil
	}
	return &llm.StreamChunk{Content: text, Type: kind}
}
