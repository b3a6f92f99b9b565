package twigx

// Render is the engine's public entry point:
// `render(root_dir, template_name, data_map, callable_registry)`. It
// wires the Loader, the Inheritance Resolver, the Environment, and the
// Evaluator together for a single, synchronous render.
func Render(rootDir, name string, data *OrderedMap, registry Registry) (string, error) {
	return RenderWithOptions(rootDir, name, data, registry, Options{})
}

// Options configures a single render call beyond the core
// (root_dir, name, data, registry) signature.
type Options struct {
	// Strict makes an unresolved variable lookup a hard LookupError
	// instead of the default lax behavior of substituting an empty
	// Value.
	Strict bool
}

func RenderWithOptions(rootDir, name string, data *OrderedMap, registry Registry, opts Options) (string, error) {
	loader := NewOSLoader(rootDir)
	return renderModule(loader, name, data, registry, opts)
}

// RenderFS renders from an already-constructed Loader (e.g. over a
// billy memfs for tests, or a chroot for a multi-tenant host).
func RenderFS(loader *Loader, name string, data *OrderedMap, registry Registry, opts Options) (string, error) {
	return renderModule(loader, name, data, registry, opts)
}

func renderModule(loader *Loader, name string, data *OrderedMap, registry Registry, opts Options) (string, error) {
	mod, err := Resolve(loader, name)
	if err != nil {
		return "", err
	}
	env := NewEnvironment(data, WithBuiltins(registry), opts.Strict)
	return renderContents(mod.Content, env)
}
