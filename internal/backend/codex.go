package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nibzard/foreman/internal/backend/proc"
	"github.com/nibzard/foreman/internal/logstream"
)

// NewCodex creates the Codex adapter. Codex exec emits NDJSON records:
// "session_configured" with the session id, "agent_message" with text,
// "error" records, and "task_complete" which doubles as the exit signal.
func NewCodex() Backend {
	spec := cliSpec{
		kind:      KindCodex,
		binary:    "codex",
		modelFlag: "--model",
		buildArgs: func(req SpawnRequest) []string {
			return []string{"exec", "--json", "--skip-git-repo-check", req.Prompt}
		},
		buildFollowUpArgs: func(req SpawnRequest) []string {
			return []string{"exec", "resume", req.SessionID, "--json", "--skip-git-repo-check", req.Prompt}
		},
		watchLine: codexWatchLine,
	}
	return &cliBackend{
		spec:      spec,
		normalize: normalizeCodexLogs,
		mcpPath:   mcpConfigPaths[KindCodex],
		setup: &SetupAction{
			Description: "Log in to Codex",
			Command:     "codex",
			Args:        []string{"login"},
		},
		avail: newAvailabilityProbe("codex", "~/.codex/auth.json"),
	}
}

func codexWatchLine(line string) (proc.ExitStatus, bool) {
	var record struct {
		Type string `json:"type"`
		Msg  struct {
			Type string `json:"type"`
		} `json:"msg"`
	}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return proc.ExitStatus{}, false
	}
	recordType := record.Type
	if record.Msg.Type != "" {
		recordType = record.Msg.Type
	}
	switch recordType {
	case "task_complete":
		return proc.ExitStatus{Code: 0}, true
	case "fatal", "turn_aborted":
		return proc.ExitStatus{Code: 1}, true
	}
	return proc.ExitStatus{}, false
}

func normalizeCodexLogs(raw *logstream.Store, out logstream.Sink, worktree string) <-chan struct{} {
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
			for _, translated := range translateCodexLine(ev.Payload) {
				_ = out.Write(translated)
			}
		}
		_ = out.Write(logstream.Finished())
	}()
	return done
}

func translateCodexLine(line string) []logstream.Event {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return []logstream.Event{logstream.Stdout(line)}
	}

	// Codex wraps event payloads in a "msg" envelope; older output puts
	// the type at the top level.
	payload := record
	if msg, ok := record["msg"].(map[string]any); ok {
		payload = msg
	}
	recordType, _ := payload["type"].(string)

	switch recordType {
	case "session_configured":
		if id, ok := payload["session_id"].(string); ok && id != "" {
			return []logstream.Event{logstream.SessionID(id)}
		}
		return nil
	case "agent_message":
		if text, ok := payload["message"].(string); ok && text != "" {
			return []logstream.Event{logstream.Stdout(text)}
		}
		return nil
	case "agent_reasoning":
		return nil
	case "error", "fatal":
		msg, _ := payload["message"].(string)
		if msg == "" {
			msg = "unknown error"
		}
		return []logstream.Event{logstream.Stderr(fmt.Sprintf("codex: %s", msg))}
	default:
		return nil
	}
}
