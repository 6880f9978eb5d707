package catalog

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed schemas.yaml
var embeddedSchemas []byte

// CustomKey is the generic schema every unknown key falls back to
const CustomKey = "custom"

// Input group names of a schema
const (
	GroupPath    = "path"
	GroupParams  = "params"
	GroupBody    = "body"
	GroupHeaders = "headers"
	GroupAuth    = "auth"
)

// FieldSpec declares one schema input
type FieldSpec struct {
	Type        string         `yaml:"type" json:"type"`
	Default     any            `yaml:"default" json:"default"`
	Required    bool           `yaml:"required" json:"required,omitempty"`
	Hidden      bool           `yaml:"hidden" json:"hidden,omitempty"`
	Placeholder string         `yaml:"placeholder" json:"placeholder,omitempty"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Validation  map[string]any `yaml:"validation" json:"validation,omitempty"`
}

// Field is a named FieldSpec inside an input group
type Field struct {
	Key   string    `json:"key"`
	Group string    `json:"group,omitempty"` // empty for flat (custom) inputs
	Spec  FieldSpec `json:"spec"`
}

// OutputSpec declares one schema output
type OutputSpec struct {
	Type        string `yaml:"type" json:"type"`
	Path        string `yaml:"path" json:"path,omitempty"`
	Format      string `yaml:"format" json:"format,omitempty"`
	Hidden      bool   `yaml:"hidden" json:"hidden,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Output is a named OutputSpec
type Output struct {
	Key  string     `json:"key"`
	Spec OutputSpec `json:"spec"`
}

// BasicAuthSpec names the inputs that carry HTTP basic credentials
type BasicAuthSpec struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Schema is a declarative description of a third-party HTTP API
type Schema struct {
	Key         string         `yaml:"-" json:"key"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Category    string         `yaml:"category" json:"category"`
	DocURL      string         `yaml:"doc_url" json:"doc_url,omitempty"`
	URL         string         `yaml:"url" json:"url"`
	Method      string         `yaml:"method" json:"method"`
	ContentType string         `yaml:"content_type" json:"content_type,omitempty"`
	AuthType    string         `yaml:"auth_type" json:"auth_type,omitempty"`
	BasicAuth   *BasicAuthSpec `yaml:"basic_auth" json:"basic_auth,omitempty"`
	RateLimit   string         `yaml:"rate_limit" json:"rate_limit,omitempty"`
	Inputs      Inputs         `yaml:"inputs" json:"inputs"`
	Outputs     Outputs        `yaml:"outputs" json:"outputs"`
}

// IsCustom reports whether the schema uses flat, free-form inputs
func (s *Schema) IsCustom() bool {
	return s.Key == CustomKey
}

// Group returns the fields of one input group in declaration order
func (s *Schema) Group(name string) []Field {
	var fields []Field
	for _, f := range s.Inputs {
		if f.Group == name {
			fields = append(fields, f)
		}
	}
	return fields
}

// Inputs is the ordered list of schema inputs.
// Grouped schemas nest fields under path/params/body/headers/auth;
// the custom schema declares flat fields.
type Inputs []Field

// UnmarshalYAML keeps declaration order and flattens groups
func (in *Inputs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("inputs must be a mapping (line %d)", node.Line)
	}
	var out Inputs
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		if isFieldNode(val) {
			var spec FieldSpec
			if err := val.Decode(&spec); err != nil {
				return fmt.Errorf("input %q: %w", key, err)
			}
			out = append(out, Field{Key: key, Spec: spec})
			continue
		}

		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("input group %q must be a mapping (line %d)", key, val.Line)
		}
		for j := 0; j+1 < len(val.Content); j += 2 {
			var spec FieldSpec
			if err := val.Content[j+1].Decode(&spec); err != nil {
				return fmt.Errorf("input %s.%s: %w", key, val.Content[j].Value, err)
			}
			out = append(out, Field{Key: val.Content[j].Value, Group: key, Spec: spec})
		}
	}
	*in = out
	return nil
}

// isFieldNode reports whether a mapping node is a field spec rather than a group
func isFieldNode(n *yaml.Node) bool {
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "type" && n.Content[i+1].Kind == yaml.ScalarNode {
			return true
		}
	}
	return false
}

// Outputs is the ordered list of schema outputs
type Outputs []Output

// UnmarshalYAML keeps declaration order
func (out *Outputs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("outputs must be a mapping (line %d)", node.Line)
	}
	var list Outputs
	for i := 0; i+1 < len(node.Content); i += 2 {
		var spec OutputSpec
		if err := node.Content[i+1].Decode(&spec); err != nil {
			return fmt.Errorf("output %q: %w", node.Content[i].Value, err)
		}
		list = append(list, Output{Key: node.Content[i].Value, Spec: spec})
	}
	*out = list
	return nil
}

type catalogFile struct {
	Schemas yaml.Node `yaml:"schemas"`
}

// Catalog is the set of API schemas available to API blocks
type Catalog struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	order   []string
	limits  *RateLimits
}

// Load parses the embedded catalog
func Load() (*Catalog, error) {
	schemas, order, err := parse(embeddedSchemas)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded schema catalog: %w", err)
	}
	c := &Catalog{schemas: schemas, order: order, limits: NewRateLimits()}
	c.limits.Configure(c.List())
	return c, nil
}

// MustLoad is Load that panics on error (the embedded catalog is static)
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a standalone catalog from YAML data
func Parse(data []byte) (*Catalog, error) {
	schemas, order, err := parse(data)
	if err != nil {
		return nil, err
	}
	if _, ok := schemas[CustomKey]; !ok {
		return nil, fmt.Errorf("schema catalog must define %q", CustomKey)
	}
	c := &Catalog{schemas: schemas, order: order, limits: NewRateLimits()}
	c.limits.Configure(c.List())
	return c, nil
}

func parse(data []byte) (map[string]*Schema, []string, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, err
	}
	if file.Schemas.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("schemas must be a mapping")
	}

	schemas := make(map[string]*Schema)
	var order []string
	for i := 0; i+1 < len(file.Schemas.Content); i += 2 {
		key := file.Schemas.Content[i].Value
		var s Schema
		if err := file.Schemas.Content[i+1].Decode(&s); err != nil {
			return nil, nil, fmt.Errorf("schema %q: %w", key, err)
		}
		s.Key = key
		if s.Method == "" {
			s.Method = "GET"
		}
		if _, dup := schemas[key]; !dup {
			order = append(order, key)
		}
		schemas[key] = &s
	}
	return schemas, order, nil
}

// LoadFile merges schemas from a YAML file over the current set.
// Keys present in the file replace existing ones; others are kept.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema catalog: %w", err)
	}
	schemas, order, err := parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse schema catalog %s: %w", path, err)
	}

	c.mu.Lock()
	for _, key := range order {
		if _, exists := c.schemas[key]; !exists {
			c.order = append(c.order, key)
		}
		c.schemas[key] = schemas[key]
	}
	c.mu.Unlock()

	c.limits.Configure(c.List())
	log.Printf("📚 [CATALOG] Loaded %d schemas from %s", len(order), path)
	return nil
}

// Get returns the schema for key
func (c *Catalog) Get(key string) (*Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[key]
	return s, ok
}

// Resolve returns the schema for key, falling back to the custom schema.
// The second return value is false when the fallback was used.
func (c *Catalog) Resolve(key string) (*Schema, bool) {
	if s, ok := c.Get(key); ok {
		return s, true
	}
	s, _ := c.Get(CustomKey)
	return s, false
}

// Keys returns schema keys in declaration order
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// List returns all schemas in declaration order
func (c *Catalog) List() []*Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]*Schema, 0, len(c.order))
	for _, k := range c.order {
		list = append(list, c.schemas[k])
	}
	return list
}

// Categories returns the sorted set of schema categories
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	for _, s := range c.List() {
		if s.Category != "" {
			seen[s.Category] = true
		}
	}
	cats := make([]string, 0, len(seen))
	for k := range seen {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	return cats
}

// RateLimits returns the per-schema outbound limiters
func (c *Catalog) RateLimits() *RateLimits {
	return c.limits
}
