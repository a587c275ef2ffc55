package backend

// lineSpec describes a line-oriented CLI backend: the agent prints plain
// text, so normalization is a passthrough and no exit signal is wired.
type lineSpec struct {
	kind   Kind
	binary string
	args   func(req SpawnRequest) []string
	// followUpArgs is nil for kinds without session fork.
	followUpArgs func(req SpawnRequest) []string
	// modelFlag is empty for CLIs that only accept a model on a
	// subcommand, where a leading flag would not parse.
	modelFlag string
	credPaths []string
	setup     *SetupAction
}

func newLineBackend(spec lineSpec) Backend {
	return &cliBackend{
		spec: cliSpec{
			kind:              spec.kind,
			binary:            spec.binary,
			buildArgs:         spec.args,
			buildFollowUpArgs: spec.followUpArgs,
			modelFlag:         spec.modelFlag,
		},
		setup:   spec.setup,
		mcpPath: mcpConfigPaths[spec.kind],
		avail:   newAvailabilityProbe(spec.binary, spec.credPaths...),
	}
}

func ampSpec() lineSpec {
	return lineSpec{
		kind:   KindAmp,
		binary: "amp",
		args: func(req SpawnRequest) []string {
			return []string{"-x", req.Prompt}
		},
		followUpArgs: func(req SpawnRequest) []string {
			return []string{"threads", "continue", req.SessionID, "-x", req.Prompt}
		},
		credPaths: []string{"~/.config/amp/settings.json"},
	}
}

func geminiSpec() lineSpec {
	return lineSpec{
		kind:      KindGemini,
		binary:    "gemini",
		modelFlag: "--model",
		args: func(req SpawnRequest) []string {
			return []string{"--yolo", "-p", req.Prompt}
		},
		followUpArgs: func(req SpawnRequest) []string {
			return []string{"--yolo", "--resume", req.SessionID, "-p", req.Prompt}
		},
		credPaths: []string{"~/.gemini/oauth_creds.json", "~/.gemini/settings.json"},
	}
}

func opencodeSpec() lineSpec {
	return lineSpec{
		kind:   KindOpencode,
		binary: "opencode",
		args: func(req SpawnRequest) []string {
			return []string{"run", req.Prompt}
		},
		followUpArgs: func(req SpawnRequest) []string {
			return []string{"run", "--session", req.SessionID, req.Prompt}
		},
		credPaths: []string{"~/.local/share/opencode/auth.json"},
	}
}

func qwenSpec() lineSpec {
	return lineSpec{
		kind:      KindQwenCode,
		binary:    "qwen",
		modelFlag: "--model",
		args: func(req SpawnRequest) []string {
			return []string{"--yolo", "-p", req.Prompt}
		},
		followUpArgs: func(req SpawnRequest) []string {
			return []string{"--yolo", "--resume", req.SessionID, "-p", req.Prompt}
		},
		credPaths: []string{"~/.qwen/oauth_creds.json"},
	}
}

func droidSpec() lineSpec {
	return lineSpec{
		kind:   KindDroid,
		binary: "droid",
		args: func(req SpawnRequest) []string {
			return []string{"exec", "--auto", "high", req.Prompt}
		},
		followUpArgs: func(req SpawnRequest) []string {
			return []string{"exec", "--auto", "high", "--session", req.SessionID, req.Prompt}
		},
		credPaths: []string{"~/.factory/auth.json"},
	}
}

// NewCursorAgent creates the Cursor CLI adapter. Cursor has no session
// fork; it does offer an interactive login as its setup helper.
func NewCursorAgent() Backend {
	return newLineBackend(lineSpec{
		kind:      KindCursorAgent,
		binary:    "cursor-agent",
		modelFlag: "--model",
		args: func(req SpawnRequest) []string {
			return []string{"--force", "-p", req.Prompt}
		},
		credPaths: []string{"~/.cursor/auth.json"},
		setup: &SetupAction{
			Description: "Log in to Cursor",
			Command:     "cursor-agent",
			Args:        []string{"login"},
		},
	})
}

// NewCopilot creates the Copilot CLI adapter. Copilot authenticates
// through GitHub and supports neither session fork nor a setup helper.
func NewCopilot() Backend {
	return newLineBackend(lineSpec{
		kind:      KindCopilot,
		binary:    "copilot",
		modelFlag: "--model",
		args: func(req SpawnRequest) []string {
			return []string{"--allow-all-tools", "-p", req.Prompt}
		},
		credPaths: []string{"~/.config/github-copilot/apps.json"},
	})
}
