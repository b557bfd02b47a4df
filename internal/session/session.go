// Package session parses JSONL conversation transcripts into ordered
// user/assistant turns and retrievable text chunks.
//
// A session file holds one JSON message per line. Message content is either
// a plain string or a list of typed content blocks; only text blocks carry
// retrievable text, the rest (tool calls, tool results) are skipped during
// extraction.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// BlockKind identifies the shape of a content block.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolCall   BlockKind = "tool_call"
	BlockToolResult BlockKind = "tool_result"
	BlockOther      BlockKind = "other"
)

// ContentBlock is one element of a structured message body. Kind is always
// one of the BlockKind constants; decoding never fails on an unknown shape,
// it yields BlockOther.
type ContentBlock struct {
	Kind     BlockKind
	Text     string // set for BlockText
	ToolName string // set for BlockToolCall
}

// Usage holds per-message token accounting as reported by the API.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

// Message is one line of a session transcript.
type Message struct {
	Role      string  `json:"role"`
	Content   Content `json:"content"`
	Timestamp string  `json:"timestamp,omitempty"`
	Usage     *Usage  `json:"usage,omitempty"`
}

// Content is a message body: a bare string or a list of content blocks.
type Content struct {
	Blocks []ContentBlock
}

// UnmarshalJSON accepts both the string form and the block-list form.
// Malformed or unrecognized blocks decode to BlockOther rather than erroring;
// a transcript line is only rejected when the JSON itself is invalid.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Blocks = []ContentBlock{{Kind: BlockText, Text: s}}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Unknown scalar/object shape. Treat as an opaque block.
		c.Blocks = []ContentBlock{{Kind: BlockOther}}
		return nil
	}

	c.Blocks = make([]ContentBlock, 0, len(raw))
	for _, r := range raw {
		c.Blocks = append(c.Blocks, decodeBlock(r))
	}
	return nil
}

func decodeBlock(data json.RawMessage) ContentBlock {
	var probe struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ContentBlock{Kind: BlockOther}
	}

	switch probe.Type {
	case "text":
		return ContentBlock{Kind: BlockText, Text: probe.Text}
	case "tool_use", "tool_call":
		return ContentBlock{Kind: BlockToolCall, ToolName: probe.Name}
	case "tool_result":
		return ContentBlock{Kind: BlockToolResult}
	default:
		return ContentBlock{Kind: BlockOther}
	}
}

// Text extracts the message's visible text: text blocks joined by newlines.
// Tool calls, tool results, and unrecognized blocks are skipped explicitly.
func (m *Message) Text() string {
	var parts []string
	for _, b := range m.Content.Blocks {
		switch b.Kind {
		case BlockText:
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case BlockToolCall, BlockToolResult, BlockOther:
			// not retrievable text
		}
	}
	return strings.Join(parts, "\n")
}

// ParseFile reads a JSONL transcript. Lines that are not valid JSON are
// skipped; the file as a whole only fails on I/O errors.
func ParseFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close()

	var messages []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return messages, nil
}
