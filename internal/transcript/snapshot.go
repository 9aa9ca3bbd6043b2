package transcript

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"
)

// Message is one conversation turn.
type Message struct {
	ID   string
	Role string
	Text string
}

// Snapshot is an immutable view of the transcript at one point in time.
// Snapshots are rebuilt on each file change and swapped into the UI model.
type Snapshot struct {
	SessionID string
	Messages  []Message
	// Streaming is the last status line's flag.
	Streaming bool
	// Skipped counts lines that were not valid JSON.
	Skipped int

	BuiltAt time.Time
}

// Last returns the final message, if any.
func (s *Snapshot) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

const maxLineBytes = 16 * 1024 * 1024

// Parse reads a JSONL transcript. Recognized line types:
//
//	{"type":"session","id":"..."}
//	{"type":"status","streaming":true}
//	{"type":"message","id":"...","message":{"role":"...","content":...}}
//	{"type":"delta","id":"...","text":"..."}
//	{"role":"...","content":...}
//
// A message line whose id was seen before replaces that message in place. A
// delta appends to the message with its id.
func Parse(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	index := make(map[string]int)

	upsert := func(m Message) {
		if i, ok := index[m.ID]; ok {
			snap.Messages[i] = m
			return
		}
		index[m.ID] = len(snap.Messages)
		snap.Messages = append(snap.Messages, m)
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			snap.Skipped++
			continue
		}
		item := gjson.Parse(line)
		switch item.Get("type").String() {
		case "session":
			if id := item.Get("id").String(); id != "" && id != snap.SessionID {
				// A new session starts a new conversation.
				snap.SessionID = id
				snap.Messages = nil
				snap.Streaming = false
				clear(index)
			}
		case "status":
			snap.Streaming = item.Get("streaming").Bool()
		case "message":
			msg := item.Get("message")
			upsert(Message{
				ID:   messageID(item, len(snap.Messages)),
				Role: roleOf(msg),
				Text: normalizeContent(msg.Get("content")),
			})
		case "delta":
			id := item.Get("id").String()
			i, ok := index[id]
			if !ok {
				upsert(Message{ID: messageID(item, len(snap.Messages)), Role: "assistant", Text: sanitizeForTerminal(item.Get("text").String())})
				continue
			}
			snap.Messages[i].Text = sanitizeForTerminal(snap.Messages[i].Text + item.Get("text").String())
		case "":
			if !item.Get("role").Exists() {
				continue
			}
			upsert(Message{
				ID:   messageID(item, len(snap.Messages)),
				Role: roleOf(item),
				Text: normalizeContent(item.Get("content")),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	snap.BuiltAt = time.Now()
	return snap, nil
}

func messageID(item gjson.Result, n int) string {
	if id := item.Get("id").String(); id != "" {
		return id
	}
	return "m" + strconv.Itoa(n+1)
}

func roleOf(msg gjson.Result) string {
	role := strings.TrimSpace(msg.Get("role").String())
	if role == "" {
		return "unknown"
	}
	return role
}

// normalizeContent flattens string or block-array content to text.
func normalizeContent(content gjson.Result) string {
	switch {
	case !content.Exists():
		return ""
	case content.Type == gjson.String:
		return sanitizeForTerminal(strings.TrimSpace(content.String()))
	case content.IsArray():
		var parts []string
		for _, block := range content.Array() {
			if part := formatBlock(block); part != "" {
				parts = append(parts, part)
			}
		}
		return sanitizeForTerminal(strings.Join(parts, "\n"))
	}
	return sanitizeForTerminal(strings.TrimSpace(content.Raw))
}

func formatBlock(block gjson.Result) string {
	if block.Type == gjson.String {
		return strings.TrimSpace(block.String())
	}
	text := strings.TrimSpace(block.Get("text").String())
	switch block.Get("type").String() {
	case "text", "":
		return text
	case "thinking", "reasoning":
		if text == "" {
			text = strings.TrimSpace(block.Get("reasoning").String())
		}
		return strings.TrimSpace("[thinking] " + text)
	case "tool_use", "toolCall":
		name := block.Get("name").String()
		if name == "" {
			name = "unknown"
		}
		return "[tool] " + name
	case "tool_result", "toolResult":
		if text == "" {
			text = normalizeContent(block.Get("content"))
		}
		return strings.TrimSpace("[result] " + text)
	}
	return text
}

const maxDisplayBytes = 100_000

// sanitizeForTerminal strips control characters that corrupt terminal output.
// Mostly-binary content is replaced by a size note; very long text is
// truncated at a rune boundary.
func sanitizeForTerminal(s string) string {
	if s == "" {
		return s
	}
	nonPrintable, total := 0, 0
	for _, r := range s {
		total++
		if !printable(r) {
			nonPrintable++
		}
	}
	if nonPrintable*10 > total {
		return fmt.Sprintf("[binary content, %s]", humanize.Bytes(uint64(len(s))))
	}

	size := len(s)
	truncated := false
	if size > maxDisplayBytes {
		for i := range s {
			if i >= maxDisplayBytes {
				s = s[:i]
				truncated = true
				break
			}
		}
	}
	if nonPrintable > 0 {
		s = strings.Map(func(r rune) rune {
			if printable(r) {
				return r
			}
			return -1
		}, s)
	}
	if truncated {
		s += fmt.Sprintf("\n\n[truncated, full content is %s]", humanize.Bytes(uint64(size)))
	}
	return s
}

func printable(r rune) bool {
	return r == '\n' || r == '\t' || (r >= 32 && r != 127 && !(r >= 0x80 && r <= 0x9F))
}
