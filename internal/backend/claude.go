package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nibzard/foreman/internal/backend/proc"
	"github.com/nibzard/foreman/internal/logstream"
)

// NewClaudeCode creates the Claude Code adapter. Claude emits NDJSON in
// its stream-json format: a "system"/"init" record carrying the session
// id, "assistant" records carrying message content, and a final "result"
// record that doubles as the exit signal.
func NewClaudeCode() Backend {
	spec := cliSpec{
		kind:      KindClaudeCode,
		binary:    "claude",
		modelFlag: "--model",
		buildArgs: func(req SpawnRequest) []string {
			return []string{
				"--output-format", "stream-json",
				"--verbose",
				"--dangerously-skip-permissions",
				"-p", req.Prompt,
			}
		},
		buildFollowUpArgs: func(req SpawnRequest) []string {
			return []string{
				"--output-format", "stream-json",
				"--verbose",
				"--dangerously-skip-permissions",
				"--resume", req.SessionID,
				"-p", req.Prompt,
			}
		},
		watchLine: claudeWatchLine,
	}
	return &cliBackend{
		spec:      spec,
		normalize: normalizeClaudeLogs,
		mcpPath:   mcpConfigPaths[KindClaudeCode],
		avail: newAvailabilityProbe("claude",
			"~/.claude/.credentials.json", "~/.claude.json"),
	}
}

// claudeWatchLine fires the exit signal on the final "result" record so
// the run can be verdicted from the agent's own protocol rather than the
// process exit code.
func claudeWatchLine(line string) (proc.ExitStatus, bool) {
	var record struct {
		Type    string `json:"type"`
		IsError bool   `json:"is_error"`
	}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return proc.ExitStatus{}, false
	}
	if record.Type != "result" {
		return proc.ExitStatus{}, false
	}
	if record.IsError {
		return proc.ExitStatus{Code: 1}, true
	}
	return proc.ExitStatus{Code: 0}, true
}

// normalizeClaudeLogs translates Claude stream-json records into
// canonical events.
func normalizeClaudeLogs(raw *logstream.Store, out logstream.Sink, worktree string) <-chan struct{} {
	events, cancel := raw.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		for ev := range events {
			if ev.Kind == logstream.KindStderr {
				_ = out.Write(ev)
				continue
			}
			for _, translated := range translateClaudeLine(ev.Payload) {
				_ = out.Write(translated)
			}
		}
		_ = out.Write(logstream.Finished())
	}()
	return done
}

func translateClaudeLine(line string) []logstream.Event {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		// Not stream-json; surface the line as-is.
		return []logstream.Event{logstream.Stdout(line)}
	}

	recordType, _ := record["type"].(string)
	switch recordType {
	case "system":
		if subtype, _ := record["subtype"].(string); subtype == "init" {
			if id, ok := record["session_id"].(string); ok && id != "" {
				return []logstream.Event{logstream.SessionID(id)}
			}
		}
		return nil
	case "assistant":
		if text := claudeMessageText(record); text != "" {
			return []logstream.Event{logstream.Stdout(text)}
		}
		return nil
	case "result":
		var events []logstream.Event
		if isError, _ := record["is_error"].(bool); isError {
			msg, _ := record["result"].(string)
			if msg == "" {
				msg = "agent reported failure"
			}
			events = append(events, logstream.Stderr(fmt.Sprintf("claude: %s", msg)))
		}
		return events
	default:
		return nil
	}
}

// claudeMessageText joins the text blocks of an assistant record's
// message.content array.
func claudeMessageText(record map[string]any) string {
	message, ok := record["message"].(map[string]any)
	if !ok {
		return ""
	}
	content, ok := message["content"].([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, item := range content {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if blockType, _ := block["type"].(string); blockType != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}
