// Package setup registers the stdio MCP server with desktop MCP clients and prepares its
// data directory.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/memstore"
)

// ServerName is the key the server is registered under in client configs.
const ServerName = "pharmatrace-candidates"

// ClientConfig is the mcpServers document read by desktop MCP clients.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
}

// ServerEntry is how a client launches one server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options control registration.
type Options struct {
	ConfigPath string // defaults to ClientConfigPath()
	BinaryPath string
	DataDir    string
}

// ClientConfigPath returns the per-OS location of the desktop client's config file.
func ClientConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
		} else {
			dir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads a client config. A missing file yields an empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &ClientConfig{MCPServers: map[string]ServerEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read client config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return &cfg, nil
}

// SaveClientConfig writes cfg, creating the parent directory.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal client config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Register adds or replaces the server entry, keeping every other server in the file.
func Register(opts Options) (string, error) {
	path := opts.ConfigPath
	if path == "" {
		p, err := ClientConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if opts.BinaryPath == "" {
		return "", errors.New("server binary path is required")
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	entry := ServerEntry{Command: opts.BinaryPath, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env["PHARMATRACE_DATA_DIR"] = opts.DataDir
	}
	cfg.MCPServers[ServerName] = entry

	if err := SaveClientConfig(path, cfg); err != nil {
		return "", err
	}
	return path, nil
}

// Status summarises the local installation.
type Status struct {
	ConfigPath string
	Registered bool
	BinaryPath string
	DataDir    string
	SeedFound  bool
	Issues     []string
}

// GetStatus inspects the client config at configPath and the data directory.
func GetStatus(configPath, defaultDataDir string) (*Status, error) {
	st := &Status{ConfigPath: configPath, DataDir: defaultDataDir, Issues: []string{}}

	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}
	if entry, ok := cfg.MCPServers[ServerName]; ok {
		st.Registered = true
		st.BinaryPath = entry.Command
		if dir := entry.Env["PHARMATRACE_DATA_DIR"]; dir != "" {
			st.DataDir = dir
		}
		if _, err := os.Stat(entry.Command); err != nil {
			st.Issues = append(st.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
		}
	} else {
		st.Issues = append(st.Issues, "server is not registered with the MCP client")
	}

	if _, err := os.Stat(filepath.Join(st.DataDir, "seed.json")); err == nil {
		st.SeedFound = true
	}
	return st, nil
}

// WriteSampleSeed writes a small seed.json into dataDir unless one exists. It returns the
// seed path and whether a file was written.
func WriteSampleSeed(dataDir string) (string, bool, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, "seed.json")
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	data, err := json.MarshalIndent(sampleSeed(time.Now().UTC()), "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal seed: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", false, fmt.Errorf("failed to write seed: %w", err)
	}
	return path, true, nil
}

func sampleSeed(now time.Time) memstore.Seed {
	return memstore.Seed{
		Trials: []domain.Trial{{
			TrialID: "NCT00000001",
			Title:   "Type 2 Diabetes Management Study",
			Status:  domain.TrialRecruiting,
			EligibilityCriteria: domain.EligibilityCriteria{
				RequiredConditions: []string{"Type 2 Diabetes"},
			},
		}},
		Profiles: []domain.PatientProfile{{
			UserID:            "demo-patient-1",
			Demographics:      domain.Demographics{AgeGroup: "50-59", Ethnicity: "Black (Nigerian)", Gender: "Female"},
			MedicalConditions: []string{"Type 2 Diabetes"},
			AnonymizedAt:      now,
		}},
		Matches: []domain.MatchRecord{{
			UserID:           "demo-patient-1",
			TrialID:          "NCT00000001",
			MatchScore:       88,
			MatchReasoning:   "Excellent Match. Meets: Type 2 Diabetes",
			EnrollmentStatus: domain.EnrollmentMatched,
		}},
	}
}
