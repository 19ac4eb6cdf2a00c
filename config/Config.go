// Package config loads experiment configuration files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes a full training run: the observation and action
// geometry, the agent hyperparameters, the replay buffer, and the
// experiment schedule.
type Config struct {
	Run  string `yaml:"run"`
	Seed uint64 `yaml:"seed"`

	Env        EnvConfig        `yaml:"env"`
	Agent      AgentConfig      `yaml:"agent"`
	Replay     ReplayConfig     `yaml:"replay"`
	Experiment ExperimentConfig `yaml:"experiment"`
}

// EnvConfig describes the observation and action geometry of the
// environment
type EnvConfig struct {
	Dims          [3]int  `yaml:"dims"`
	Channels      int     `yaml:"channels"`
	Agents        int     `yaml:"agents"`
	ActionDim     int     `yaml:"action_dim"`
	MaxAction     float64 `yaml:"max_action"`
	EpisodeLength int     `yaml:"episode_length"`
}

// AgentConfig describes the TD3 hyperparameters
type AgentConfig struct {
	HiddenSize  int     `yaml:"hidden_size"`
	BatchSize   int     `yaml:"batch_size"`
	Discount    float64 `yaml:"discount"`
	Tau         float64 `yaml:"tau"`
	PolicyNoise float64 `yaml:"policy_noise"`
	NoiseClip   float64 `yaml:"noise_clip"`
	PolicyFreq  int     `yaml:"policy_freq"`
	ActorLR     float64 `yaml:"actor_lr"`
	CriticLR    float64 `yaml:"critic_lr"`
}

// ReplayConfig describes the replay buffer capacities
type ReplayConfig struct {
	MinCapacity int `yaml:"min_capacity"`
	MaxCapacity int `yaml:"max_capacity"`
}

// ExperimentConfig describes the training schedule and where run
// artifacts are written
type ExperimentConfig struct {
	MaxSteps          uint    `yaml:"max_steps"`
	ExplorationNoise  float64 `yaml:"exploration_noise"`
	CheckpointDir     string  `yaml:"checkpoint_dir"`
	CheckpointEvery   uint    `yaml:"checkpoint_every"`
	CheckpointMinGapS int     `yaml:"checkpoint_min_gap_s"`
	ReturnsFile       string  `yaml:"returns_file"`
	RunLogDB          string  `yaml:"run_log_db"`
}

// CheckpointMinGap returns the minimum wall-clock time between
// unforced checkpoint saves
func (e ExperimentConfig) CheckpointMinGap() time.Duration {
	return time.Duration(e.CheckpointMinGapS) * time.Second
}

// Load reads the Config at path, filling unset fields with defaults.
// An empty path returns the default Config.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Run:  "td3",
		Seed: 1,

		Env: EnvConfig{
			Dims:          [3]int{45, 45, 45},
			Channels:      1,
			Agents:        1,
			ActionDim:     3,
			MaxAction:     1.0,
			EpisodeLength: 200,
		},

		Agent: AgentConfig{
			HiddenSize:  256,
			BatchSize:   32,
			Discount:    0.99,
			Tau:         0.005,
			PolicyNoise: 0.2,
			NoiseClip:   0.5,
			PolicyFreq:  2,
			ActorLR:     3e-4,
			CriticLR:    3e-4,
		},

		Replay: ReplayConfig{
			MinCapacity: 1000,
			MaxCapacity: 100000,
		},

		Experiment: ExperimentConfig{
			MaxSteps:          100000,
			ExplorationNoise:  0.1,
			CheckpointDir:     "checkpoints",
			CheckpointEvery:   5000,
			CheckpointMinGapS: 60,
			ReturnsFile:       "returns.bin",
			RunLogDB:          "runs.db",
		},
	}
}

// Validate checks the parts of the Config that the packages consuming
// it do not check themselves
func (c Config) Validate() error {
	if strings.TrimSpace(c.Run) == "" {
		return fmt.Errorf("validate: run name cannot be empty")
	}
	if c.Env.EpisodeLength < 1 {
		return fmt.Errorf("validate: episode length must be positive "+
			"\n\thave(%v)", c.Env.EpisodeLength)
	}
	if c.Agent.ActorLR <= 0 || c.Agent.CriticLR <= 0 {
		return fmt.Errorf("validate: learning rates must be positive "+
			"\n\thave(%v, %v)", c.Agent.ActorLR, c.Agent.CriticLR)
	}
	if c.Replay.MinCapacity < c.Agent.BatchSize {
		return fmt.Errorf("validate: replay buffer minimum capacity (%v) "+
			"cannot be smaller than the batch size (%v)",
			c.Replay.MinCapacity, c.Agent.BatchSize)
	}
	if c.Experiment.MaxSteps == 0 {
		return fmt.Errorf("validate: max steps must be positive")
	}
	return nil
}
