package config

import (
	"reflect"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"gopkg.in/yaml.v2"
)

const typeKey = "type"

// Registry maps the `type` of a chain or prover section to its config implementation
type Registry struct {
	chains  map[string]func() core.ChainConfig
	provers map[string]func() core.ProverConfig
}

func NewRegistry() *Registry {
	return &Registry{
		chains:  make(map[string]func() core.ChainConfig),
		provers: make(map[string]func() core.ProverConfig),
	}
}

// RegisterChain registers a chain config type. factory must return a pointer to a yaml-decodable struct.
func (r *Registry) RegisterChain(typeName string, factory func() core.ChainConfig) {
	if _, ok := r.chains[typeName]; ok {
		panic("chain config type already registered: " + typeName)
	}
	r.chains[typeName] = factory
}

// RegisterProver registers a prover config type. factory must return a pointer to a yaml-decodable struct.
func (r *Registry) RegisterProver(typeName string, factory func() core.ProverConfig) {
	if _, ok := r.provers[typeName]; ok {
		panic("prover config type already registered: " + typeName)
	}
	r.provers[typeName] = factory
}

// ChainTypes returns the registered chain config types in order
func (r *Registry) ChainTypes() []string {
	return sortedNames(r.chains)
}

// ProverTypes returns the registered prover config types in order
func (r *Registry) ProverTypes() []string {
	return sortedNames(r.provers)
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeChain decodes a typed chain section, e.g. one nested in another chain config
func (r *Registry) DecodeChain(section yaml.MapSlice) (core.ChainConfig, error) {
	cfg, _, err := r.decodeChain(section)
	return cfg, err
}

func (r *Registry) decodeChain(section yaml.MapSlice) (core.ChainConfig, string, error) {
	typeName, body, err := splitType(section)
	if err != nil {
		return nil, "", err
	}
	factory, ok := r.chains[typeName]
	if !ok {
		return nil, typeName, errors.Newf("unknown chain type %q", typeName)
	}
	cfg := factory()
	if err := yaml.UnmarshalStrict(body, cfg); err != nil {
		return nil, typeName, errors.Wrapf(err, "failed to decode chain of type %q", typeName)
	}
	return cfg, typeName, nil
}

func (r *Registry) decodeProver(section yaml.MapSlice) (core.ProverConfig, string, error) {
	typeName, body, err := splitType(section)
	if err != nil {
		return nil, "", err
	}
	factory, ok := r.provers[typeName]
	if !ok {
		return nil, typeName, errors.Newf("unknown prover type %q", typeName)
	}
	cfg := factory()
	if err := yaml.UnmarshalStrict(body, cfg); err != nil {
		return nil, typeName, errors.Wrapf(err, "failed to decode prover of type %q", typeName)
	}
	return cfg, typeName, nil
}

// chainTypeOf returns the registered name of the type of cfg
func (r *Registry) chainTypeOf(cfg core.ChainConfig) (string, error) {
	for name, factory := range r.chains {
		if reflect.TypeOf(factory()) == reflect.TypeOf(cfg) {
			return name, nil
		}
	}
	return "", errors.Newf("chain config type %T is not registered", cfg)
}

func (r *Registry) proverTypeOf(cfg core.ProverConfig) (string, error) {
	for name, factory := range r.provers {
		if reflect.TypeOf(factory()) == reflect.TypeOf(cfg) {
			return name, nil
		}
	}
	return "", errors.Newf("prover config type %T is not registered", cfg)
}

// splitType removes the type key from a section and returns the rest re-encoded
func splitType(section yaml.MapSlice) (string, []byte, error) {
	var (
		typeName string
		rest     yaml.MapSlice
	)
	for _, item := range section {
		if key, ok := item.Key.(string); ok && key == typeKey {
			typeName, _ = item.Value.(string)
			continue
		}
		rest = append(rest, item)
	}
	if typeName == "" {
		return "", nil, errors.New("section has no type")
	}
	if len(rest) == 0 {
		return typeName, []byte("{}"), nil
	}
	body, err := yaml.Marshal(rest)
	if err != nil {
		return "", nil, err
	}
	return typeName, body, nil
}

// withType encodes v as a section that starts with its type
func withType(typeName string, v any) (yaml.MapSlice, error) {
	bz, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	var body yaml.MapSlice
	if err := yaml.Unmarshal(bz, &body); err != nil {
		return nil, err
	}
	return append(yaml.MapSlice{{Key: typeKey, Value: typeName}}, body...), nil
}
