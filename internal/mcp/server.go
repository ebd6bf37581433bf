package mcp

import (
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/vouch/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"snapshot", "candidate"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"snapshot_put": {
		def:     snapshotPutToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshotPut },
	},
	"snapshot_get": {
		def:     snapshotGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshotGet },
	},
	"candidate_stage": {
		def:     stageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStage },
	},
	"candidate_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"candidate_pending": {
		def:     pendingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePending },
	},
	"candidate_decide": {
		def:     decideToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDecide },
	},
	"candidate_duplicates": {
		def:     duplicatesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDuplicates },
	},
	"candidate_promote": {
		def:     promoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromote },
	},
	"candidate_review": {
		def:     reviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReview },
	},
	"candidate_reverify": {
		def:     reverifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReverify },
	},
	"candidate_stats": {
		def:     statsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStats },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "candidate_stage" → "candidate").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		typ := GetTypeForTool(name)
		if typeSet[typ] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Vouch tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"vouch",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, version string) error {
	s := NewServer(db, cfg, version)
	return server.ServeStdio(s)
}
