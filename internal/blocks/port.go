package blocks

// DataType tags the kind of value a port carries
type DataType string

const (
	DataAny     DataType = "any"
	DataString  DataType = "string"
	DataNumber  DataType = "number"
	DataBoolean DataType = "boolean"
	DataJSON    DataType = "json"
	DataList    DataType = "list"
)

// Direction selects the input or output side of a block
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// PortMeta is the descriptive metadata of a port
type PortMeta struct {
	DataType    DataType
	Default     any
	Hidden      bool
	Required    bool
	Placeholder string
	Description string
	Validation  map[string]any

	// API blocks only
	Group  string // input group: path, params, body, headers, auth
	Path   string // output extraction path
	Format string // output format hint, e.g. base64_image
}

// Port is a named slot on a block
type Port struct {
	Key   string
	Value any
	Meta  PortMeta
	Core  bool // core ports survive reconfiguration
}

// portSet is an insertion-ordered set of ports
type portSet struct {
	order []string
	ports map[string]*Port
}

func newPortSet() portSet {
	return portSet{ports: make(map[string]*Port)}
}

func (s *portSet) get(key string) (*Port, bool) {
	p, ok := s.ports[key]
	return p, ok
}

func (s *portSet) has(key string) bool {
	_, ok := s.ports[key]
	return ok
}

// upsert registers key or refreshes its metadata, keeping any current value
func (s *portSet) upsert(key string, meta PortMeta, core bool, initial any) *Port {
	if p, ok := s.ports[key]; ok {
		p.Meta = meta
		p.Core = p.Core || core
		return p
	}
	p := &Port{Key: key, Value: initial, Meta: meta, Core: core}
	s.ports[key] = p
	s.order = append(s.order, key)
	return p
}

func (s *portSet) remove(key string) {
	if _, ok := s.ports[key]; !ok {
		return
	}
	delete(s.ports, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *portSet) keys() []string {
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys
}

func (s *portSet) values() map[string]any {
	out := make(map[string]any, len(s.order))
	for _, k := range s.order {
		out[k] = s.ports[k].Value
	}
	return out
}

func (s *portSet) list() []Port {
	out := make([]Port, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.ports[k])
	}
	return out
}

func (s *portSet) hidden() []string {
	out := []string{}
	for _, k := range s.order {
		if s.ports[k].Meta.Hidden {
			out = append(out, k)
		}
	}
	return out
}
