package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotConfigured indicates no deployment profile resolves for the active type.
var ErrNotConfigured = errors.New("no deployment configured")

const (
	defaultWorkingDir = "."
	defaultEnvVar     = "NGC_API_KEY"
	defaultNamespace  = "nemo"
	defaultLogLabel   = "Status"
	defaultHeading    = "Deploy"
	// VersionPlaceholder is substituted in log source commands.
	VersionPlaceholder = "${VERSION}"
)

// LogSource is a read-only command reported after a successful deployment.
type LogSource struct {
	Command string `yaml:"command" json:"command"`
	Label   string `yaml:"label" json:"label"`
}

// Profile describes one deployment type.
type Profile struct {
	Command        string      `yaml:"command" json:"command"`
	WorkingDir     string      `yaml:"working_dir" json:"working_dir"`
	EnvVar         string      `yaml:"env_var" json:"env_var"`
	PreCommands    []string    `yaml:"pre_commands" json:"pre_commands"`
	LogSources     []LogSource `yaml:"log_sources" json:"log_sources"`
	Namespace      string      `yaml:"namespace" json:"namespace"`
	Versions       []string    `yaml:"versions" json:"versions"`
	DefaultVersion string      `yaml:"default_version" json:"default_version"`
	Description    string      `yaml:"description" json:"description"`
	Heading        string      `yaml:"heading" json:"heading"`
}

// withDefaults fills the fields the server relies on.
func (p Profile) withDefaults() Profile {
	if strings.TrimSpace(p.WorkingDir) == "" {
		p.WorkingDir = defaultWorkingDir
	}
	if strings.TrimSpace(p.EnvVar) == "" {
		p.EnvVar = defaultEnvVar
	}
	if strings.TrimSpace(p.Namespace) == "" {
		p.Namespace = defaultNamespace
	}
	for i := range p.LogSources {
		if strings.TrimSpace(p.LogSources[i].Label) == "" {
			p.LogSources[i].Label = defaultLogLabel
		}
	}
	return p
}

// Validate reports whether the profile can be deployed.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Command) == "" {
		return fmt.Errorf("%w: profile has no command", ErrNotConfigured)
	}
	return nil
}

// ResolveVersion returns requested when set, otherwise the profile default.
func (p Profile) ResolveVersion(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return p.DefaultVersion
}

// Expand substitutes the version placeholder in a command template.
func Expand(template, version string) string {
	return strings.ReplaceAll(template, VersionPlaceholder, version)
}

// Metadata is the public description of the active deployment.
type Metadata struct {
	ActiveDeployment    string   `json:"active_deployment"`
	Versions            []string `json:"versions"`
	DefaultVersion      string   `json:"default_version"`
	Description         string   `json:"description"`
	ShowVersionSelector bool     `json:"show_version_selector"`
	Heading             string   `json:"heading"`
}

// Resolver resolves the active deployment profile.
type Resolver interface {
	Resolve() (string, Profile, error)
}

// FileResolver reads deployment profiles from a JSON or YAML file on every call.
type FileResolver struct {
	path       string
	deployType string
	heading    string
	onFallback func(error)
}

// NewFileResolver builds a resolver for path. deployType selects the profile; when
// empty the first profile in the file is active. heading overrides profile headings.
func NewFileResolver(path, deployType, heading string, onFallback func(error)) *FileResolver {
	return &FileResolver{path: path, deployType: deployType, heading: heading, onFallback: onFallback}
}

// Resolve returns the active deployment type and its profile.
func (r *FileResolver) Resolve() (string, Profile, error) {
	names, profiles := r.load()
	name := r.deployType
	if name == "" {
		if len(names) == 0 {
			return "", Profile{}, ErrNotConfigured
		}
		name = names[0]
	}
	p, ok := profiles[name]
	if !ok {
		return "", Profile{}, fmt.Errorf("%w: %q", ErrNotConfigured, name)
	}
	if err := p.Validate(); err != nil {
		return "", Profile{}, fmt.Errorf("%q: %w", name, err)
	}
	return name, p.withDefaults(), nil
}

// Metadata describes the active deployment for display.
func (r *FileResolver) Metadata() (Metadata, error) {
	name, p, err := r.Resolve()
	if err != nil {
		return Metadata{}, err
	}
	heading := r.heading
	if heading == "" {
		heading = p.Heading
	}
	if heading == "" {
		heading = defaultHeading
	}
	versions := p.Versions
	if versions == nil {
		versions = []string{}
	}
	return Metadata{
		ActiveDeployment:    name,
		Versions:            versions,
		DefaultVersion:      p.DefaultVersion,
		Description:         p.Description,
		ShowVersionSelector: len(p.Versions) > 0,
		Heading:             heading,
	}, nil
}

func (r *FileResolver) load() ([]string, map[string]Profile) {
	data, err := os.ReadFile(r.path)
	if err == nil {
		var names []string
		var profiles map[string]Profile
		names, profiles, err = decodeProfiles(data)
		if err == nil {
			return names, profiles
		}
	}
	if r.onFallback != nil {
		r.onFallback(err)
	}
	return fallbackProfiles()
}

// decodeProfiles parses the profile document while keeping key order, which decides
// the default deployment type.
func decodeProfiles(data []byte) ([]string, map[string]Profile, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse deployment config: %w", err)
	}
	profiles := make(map[string]Profile)
	if len(doc.Content) == 0 {
		return nil, profiles, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("parse deployment config: expected a mapping of deployment types")
	}
	names := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var p Profile
		if err := root.Content[i+1].Decode(&p); err != nil {
			return nil, nil, fmt.Errorf("parse deployment %q: %w", key, err)
		}
		names = append(names, key)
		profiles[key] = p
	}
	return names, profiles, nil
}

func fallbackProfiles() ([]string, map[string]Profile) {
	return []string{"docker-compose", "helm"}, map[string]Profile{
		"docker-compose": {
			Command:    "docker-compose up -d",
			WorkingDir: "/app",
			EnvVar:     defaultEnvVar,
		},
		"helm": {
			Command:    "helm install myrelease ./chart",
			WorkingDir: "/app",
			EnvVar:     defaultEnvVar,
		},
	}
}
