// Package branding provides compile-time identity values for the CLI.
//
// Forkers edit branding.yaml in this package; Go's //go:embed bakes it into
// the binary.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName     string `yaml:"cli_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	HomeDir     string `yaml:"home_dir"`
	EnvPrefix   string `yaml:"env_prefix"`
	GoModule    string `yaml:"go_module"`
	GitHubRepo  string `yaml:"github_repo"`
	CorpusFile  string `yaml:"corpus_file"`
	StateDir    string `yaml:"state_dir"`
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is missing or empty.
		defaults = brand{
			CLIName:     "capreg",
			DisplayName: "Capreg",
			Description: "Registry and consistency engine for capability documents",
			HomeDir:     ".capreg",
			EnvPrefix:   "CAPREG",
			GoModule:    "github.com/agentx-labs/capreg",
			GitHubRepo:  "agentx-labs/capreg",
			CorpusFile:  "capreg",
			StateDir:    ".capreg",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "capreg").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".capreg").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "CAPREG").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path.
func GoModule() string { load(); return defaults.GoModule }

// GitHubRepo returns the "owner/repo" string.
func GitHubRepo() string { load(); return defaults.GitHubRepo }

// CorpusFile returns the base name of the corpus config file, without
// extension (e.g., "capreg" for capreg.yaml).
func CorpusFile() string { load(); return defaults.CorpusFile }

// StateDir returns the corpus-relative directory holding persisted state.
func StateDir() string { load(); return defaults.StateDir }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("MODE") → "CAPREG_MODE".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
