package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// mcpConfigPaths maps each kind to the default location of its MCP
// tool-server configuration. Kinds absent here do not support MCP.
var mcpConfigPaths = map[Kind]string{
	KindClaudeCode:  "~/.claude.json",
	KindAmp:         "~/.config/amp/settings.json",
	KindGemini:      "~/.gemini/settings.json",
	KindCodex:       "~/.codex/config.toml",
	KindOpencode:    "~/.config/opencode/opencode.json",
	KindCursorAgent: "~/.cursor/mcp.json",
	KindQwenCode:    "~/.qwen/settings.json",
	KindDroid:       "~/.factory/mcp.json",
}

// mcpServersKey maps each kind to the JSON key its config nests MCP
// server definitions under.
var mcpServersKey = map[Kind]string{
	KindClaudeCode:  "mcpServers",
	KindAmp:         "amp.mcpServers",
	KindGemini:      "mcpServers",
	KindCodex:       "mcp_servers",
	KindOpencode:    "mcp",
	KindCursorAgent: "mcpServers",
	KindQwenCode:    "mcpServers",
	KindDroid:       "mcpServers",
}

// mcpServersSchema validates the server-definition block of a JSON MCP
// config: a map of named servers, each with a command and optional
// args/env.
const mcpServersSchema = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"properties": {
			"command": {"type": "string", "minLength": 1},
			"args": {"type": "array", "items": {"type": "string"}},
			"env": {"type": "object", "additionalProperties": {"type": "string"}},
			"url": {"type": "string"}
		}
	}
}`

// ValidateMCPConfig checks the MCP config at path for the given kind. A
// missing file is not an error; the backend simply has no MCP servers
// configured. TOML configs (codex) are checked for well-formedness only.
func ValidateMCPConfig(kind Kind, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read mcp config: %w", err)
	}

	if strings.HasSuffix(path, ".toml") {
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse mcp config %s: %w", path, err)
		}
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse mcp config %s: %w", path, err)
	}

	key, ok := mcpServersKey[kind]
	if !ok {
		return nil
	}
	servers, ok := doc[key]
	if !ok {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mcp-servers.json", strings.NewReader(mcpServersSchema)); err != nil {
		return fmt.Errorf("load mcp schema: %w", err)
	}
	schema, err := compiler.Compile("mcp-servers.json")
	if err != nil {
		return fmt.Errorf("compile mcp schema: %w", err)
	}
	if err := schema.Validate(servers); err != nil {
		return fmt.Errorf("invalid mcp config %s: %w", path, err)
	}
	return nil
}
