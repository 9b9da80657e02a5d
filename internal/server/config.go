package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/moonhollow/werewolf-server/internal/game"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	// A pointer makes the block optional under gohcl; LoadServerConfig
	// fills in defaults when the file omits it.
	Server *ServerSettings `hcl:"server,block"`
	Games  []GameConfig   `hcl:"game,block"`
	Bots   []BotConfig    `hcl:"bot,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
}

// GameConfig defines one game to start at boot. Roles lists the full deal;
// the first Humans seats are reserved for human players, the rest run on
// built-in deciders.
type GameConfig struct {
	Name         string   `hcl:"name,label"`
	Roles        []string `hcl:"roles"`
	Humans       int      `hcl:"humans,optional"`
	PhaseTimeout string   `hcl:"phase_timeout,optional"`
	AutoStart    bool     `hcl:"auto_start,optional"`
	Seed         int64    `hcl:"seed,optional"`
}

// BotConfig defines the decider configuration for AI seats
type BotConfig struct {
	Name          string   `hcl:"name,label"`
	Strategy      string   `hcl:"strategy"`
	Games         []string `hcl:"games,optional"`
	DecideTimeout string   `hcl:"decide_timeout,optional"`
	MaxFailures   int      `hcl:"max_failures,optional"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
			LogFile:  "werewolf-server.log",
		},
		Games: []GameConfig{
			{
				Name: "main",
				Roles: []string{
					"werewolf", "werewolf", "werewolf",
					"villager", "villager", "villager",
					"seer", "witch", "hunter",
				},
				Humans:       0,
				PhaseTimeout: "60s",
				AutoStart:    true,
			},
		},
		Bots: []BotConfig{
			{
				Name:          "default",
				Strategy:      "heuristic",
				Games:         []string{"main"},
				DecideTimeout: "30s",
				MaxFailures:   3,
			},
		},
	}
}

// LoadServerConfig loads server configuration from an HCL file. A missing
// file yields the defaults.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	// Apply defaults for missing values
	if config.Server == nil {
		config.Server = &ServerSettings{}
	}
	if config.Server.Address == "" {
		config.Server.Address = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Server.LogFile == "" {
		config.Server.LogFile = "werewolf-server.log"
	}

	for i := range config.Games {
		if config.Games[i].PhaseTimeout == "" {
			config.Games[i].PhaseTimeout = "60s"
		}
	}

	for i := range config.Bots {
		if config.Bots[i].Strategy == "" {
			config.Bots[i].Strategy = "heuristic"
		}
		if config.Bots[i].DecideTimeout == "" {
			config.Bots[i].DecideTimeout = "30s"
		}
		if config.Bots[i].MaxFailures == 0 {
			config.Bots[i].MaxFailures = 3
		}
		if len(config.Bots[i].Games) == 0 {
			for _, g := range config.Games {
				config.Bots[i].Games = append(config.Bots[i].Games, g.Name)
			}
		}
	}

	return &config, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("missing server settings")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	for _, g := range c.Games {
		if len(g.Roles) < 3 {
			return fmt.Errorf("game %s: need at least 3 roles, got %d", g.Name, len(g.Roles))
		}
		wolves := 0
		for _, raw := range g.Roles {
			role := game.Role(raw)
			if !role.Valid() {
				return fmt.Errorf("game %s: unknown role %q", g.Name, raw)
			}
			if role.Werewolf() {
				wolves++
			}
		}
		if wolves == 0 {
			return fmt.Errorf("game %s: no werewolf-aligned roles", g.Name)
		}
		if wolves == len(g.Roles) {
			return fmt.Errorf("game %s: every seat is werewolf-aligned", g.Name)
		}
		if g.Humans < 0 || g.Humans > len(g.Roles) {
			return fmt.Errorf("game %s: humans must be between 0 and %d", g.Name, len(g.Roles))
		}
		if _, err := time.ParseDuration(g.PhaseTimeout); err != nil {
			return fmt.Errorf("game %s: invalid phase_timeout: %w", g.Name, err)
		}
	}

	validStrategies := map[string]bool{
		"heuristic": true,
		"rand":      true,
	}
	for _, b := range c.Bots {
		if !validStrategies[b.Strategy] {
			return fmt.Errorf("bot %s: invalid strategy %s", b.Name, b.Strategy)
		}
		if _, err := time.ParseDuration(b.DecideTimeout); err != nil {
			return fmt.Errorf("bot %s: invalid decide_timeout: %w", b.Name, err)
		}
		if b.MaxFailures < 1 {
			return fmt.Errorf("bot %s: max_failures must be positive", b.Name)
		}
	}

	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GetGameByName returns a game configuration by name
func (c *ServerConfig) GetGameByName(name string) *GameConfig {
	for i := range c.Games {
		if c.Games[i].Name == name {
			return &c.Games[i]
		}
	}
	return nil
}

// GetBotForGame returns the first bot configured for a game, if any.
func (c *ServerConfig) GetBotForGame(gameName string) *BotConfig {
	for i := range c.Bots {
		for _, g := range c.Bots[i].Games {
			if g == gameName {
				return &c.Bots[i]
			}
		}
	}
	return nil
}

// RoleList converts the configured role names to engine roles.
func (g *GameConfig) RoleList() []game.Role {
	roles := make([]game.Role, len(g.Roles))
	for i, raw := range g.Roles {
		roles[i] = game.Role(raw)
	}
	return roles
}

// SeatSpecs builds the participant list for this game: the first Humans
// seats as humans, the rest as AI.
func (g *GameConfig) SeatSpecs() []game.SeatSpec {
	specs := make([]game.SeatSpec, len(g.Roles))
	for i := range specs {
		kind := game.SeatAI
		name := fmt.Sprintf("bot-%d", i+1)
		if i < g.Humans {
			kind = game.SeatHuman
			name = fmt.Sprintf("player-%d", i+1)
		}
		specs[i] = game.SeatSpec{Name: name, Kind: kind}
	}
	return specs
}
