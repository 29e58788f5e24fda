package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: Config{
				Chain:     ChainConfig{Endpoints: []string{"ws://127.0.0.1:9944"}, Timeout: 10 * time.Second},
				Challenge: ChallengeConfig{SampleSize: 32},
				Smoother:  SmootherConfig{Alpha: 0.1},
				Score:     ScoreConfig{IndividualWeight: 0.6, TeamWeight: 0.4},
			},
			wantErr: false,
		},
		{
			name:    "missing chain endpoints",
			config:  Config{Challenge: ChallengeConfig{SampleSize: 32}, Smoother: SmootherConfig{Alpha: 0.1}, Score: ScoreConfig{IndividualWeight: 0.6, TeamWeight: 0.4}},
			wantErr: true,
			errMsg:  "chain.endpoints is required",
		},
		{
			name: "non-positive sample size",
			config: Config{
				Chain:     ChainConfig{Endpoints: []string{"ws://127.0.0.1:9944"}},
				Challenge: ChallengeConfig{SampleSize: 0},
				Smoother:  SmootherConfig{Alpha: 0.1},
				Score:     ScoreConfig{IndividualWeight: 0.6, TeamWeight: 0.4},
			},
			wantErr: true,
			errMsg:  "challenge.sample_size must be positive",
		},
		{
			name: "alpha out of range",
			config: Config{
				Chain:     ChainConfig{Endpoints: []string{"ws://127.0.0.1:9944"}},
				Challenge: ChallengeConfig{SampleSize: 32},
				Smoother:  SmootherConfig{Alpha: 1.5},
				Score:     ScoreConfig{IndividualWeight: 0.6, TeamWeight: 0.4},
			},
			wantErr: true,
			errMsg:  "smoother.alpha must be in (0, 1]",
		},
		{
			name: "weights don't sum to one",
			config: Config{
				Chain:     ChainConfig{Endpoints: []string{"ws://127.0.0.1:9944"}},
				Challenge: ChallengeConfig{SampleSize: 32},
				Smoother:  SmootherConfig{Alpha: 0.1},
				Score:     ScoreConfig{IndividualWeight: 0.7, TeamWeight: 0.4},
			},
			wantErr: true,
			errMsg:  "score.individual_weight + score.team_weight must equal 1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				} else if tt.errMsg != "" && err.Error() != tt.errMsg {
					t.Errorf("error = %q, want %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadWithTempConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
chain:
  endpoints:
    - "ws://127.0.0.1:9944"
  timeout: 10s

subnet:
  netuid: 7

challenge:
  sample_size: 16

score:
  individual_weight: 0.6
  team_weight: 0.4

smoother:
  alpha: 0.2
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Subnet.NetUID != 7 {
		t.Errorf("Subnet.NetUID = %d, want 7", cfg.Subnet.NetUID)
	}
	if cfg.Challenge.SampleSize != 16 {
		t.Errorf("Challenge.SampleSize = %d, want 16", cfg.Challenge.SampleSize)
	}
	if cfg.Smoother.Alpha != 0.2 {
		t.Errorf("Smoother.Alpha = %f, want 0.2", cfg.Smoother.Alpha)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
chain:
  endpoints: []
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() should return error for invalid config")
	}
}

func TestLoadUsesDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Chain.Endpoints) == 0 {
		t.Error("expected default chain endpoints to be set")
	}
	if cfg.Score.IndividualWeight+cfg.Score.TeamWeight != 1.0 {
		t.Error("expected default weights to sum to 1.0")
	}
}
