package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nanocasa/casa/internal/domain/model"
)

//go:embed ecosystem.yaml
var defaultManifest []byte

// Manifest lists the ecosystem sources: search queries, pinned and ignored
// repositories, and the public nodes to probe.
type Manifest struct {
	Queries     []string       `yaml:"queries"`
	Pinned      []string       `yaml:"pinned"`
	Ignored     []string       `yaml:"ignored"`
	PublicNodes []ManifestNode `yaml:"public_nodes"`
}

// ManifestNode is one public node entry of the manifest.
type ManifestNode struct {
	Endpoint   string `yaml:"endpoint"`
	Website    string `yaml:"website"`
	Websocket  string `yaml:"websocket"`
	Deprecated bool   `yaml:"deprecated"`
}

// Endpoints returns the public nodes in manifest order.
func (m Manifest) Endpoints() []model.NodeEndpoint {
	out := make([]model.NodeEndpoint, 0, len(m.PublicNodes))
	for _, n := range m.PublicNodes {
		out = append(out, model.NodeEndpoint{
			Endpoint:   n.Endpoint,
			Website:    n.Website,
			Websocket:  n.Websocket,
			Deprecated: n.Deprecated,
		})
	}
	return out
}

// LoadManifest reads the manifest at path. A missing file falls back to the
// embedded default manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ParseManifest(bytes.NewReader(defaultManifest))
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	m, err := ParseManifest(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates a manifest. Unknown fields are rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks repository names and node endpoints.
func (m *Manifest) Validate() error {
	if len(m.Queries) == 0 && len(m.Pinned) == 0 {
		return errors.New("manifest needs at least one query or pinned repository")
	}

	for _, list := range [][]string{m.Pinned, m.Ignored} {
		for _, name := range list {
			owner, repo, ok := strings.Cut(name, "/")
			if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
				return fmt.Errorf("invalid repository name %q: expected owner/repo", name)
			}
		}
	}

	for i, n := range m.PublicNodes {
		if !strings.HasPrefix(n.Endpoint, "http://") && !strings.HasPrefix(n.Endpoint, "https://") {
			return fmt.Errorf("public_nodes[%d]: endpoint %q must be an http(s) URL", i, n.Endpoint)
		}
	}

	return nil
}
