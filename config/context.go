package config

type Context struct {
	Modules  []ModuleI
	Registry *Registry
	Config   *Config
	// HomePath is the directory that holds the config, keys and data of the relayer
	HomePath string
}

// NewContext registers the config types of modules into a new registry
func NewContext(modules ...ModuleI) *Context {
	registry := NewRegistry()
	for _, m := range modules {
		m.RegisterConfigs(registry)
	}
	return &Context{Modules: modules, Registry: registry}
}
