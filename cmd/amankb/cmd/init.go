package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/output"
)

// MCPServerConfig is one server entry in .mcp.json.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig is the root of .mcp.json.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var force, withMCP bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a .amankb.yaml configuration template",
		Long: `Write .amankb.yaml with every setting at its default value, ready to edit.

With --mcp, also add an amankb entry to .mcp.json so MCP clients started in
this directory can reach the knowledge base.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, withMCP)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "Also register the server in .mcp.json")
	return cmd
}

func runInit(cmd *cobra.Command, force, withMCP bool) error {
	out := output.New(cmd.OutOrStdout())

	dir := configDirFlag
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	path := filepath.Join(dir, config.ProjectConfigNames[0])
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.NewConfig()
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}
	if err := cfg.WriteYAML(path); err != nil {
		return err
	}
	out.Successf("Wrote %s", path)

	if withMCP {
		mcpPath := filepath.Join(dir, ".mcp.json")
		if err := writeMCPConfig(mcpPath, cfg.Paths.DataDir); err != nil {
			return err
		}
		out.Successf("Registered amankb in %s", mcpPath)
	}
	return nil
}

// writeMCPConfig adds or replaces the amankb entry, keeping other servers.
func writeMCPConfig(path, dataDir string) error {
	mc := MCPConfig{MCPServers: map[string]MCPServerConfig{}}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &mc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if mc.MCPServers == nil {
			mc.MCPServers = map[string]MCPServerConfig{}
		}
	}

	mc.MCPServers["amankb"] = MCPServerConfig{
		Type:    "stdio",
		Command: "amankb",
		Args:    []string{"serve"},
		Env:     map[string]string{"AMANKB_DATA_DIR": dataDir},
	}

	data, err := json.MarshalIndent(mc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
