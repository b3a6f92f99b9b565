package twigx

import (
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Loader reads, parses, and memoizes Modules by name over a
// billy.Filesystem, created on first
// reference and cached for the process or session; immutable once
// parsed"). Grounded on pgavlin-yomlette's billy.Filesystem usage for
// the filesystem abstraction, and inlines include statements at load time for
// include inlining.
type Loader struct {
	fs      billy.Filesystem
	cache   map[string]*Module
	loading map[string]bool
}

// NewLoader wraps an arbitrary billy.Filesystem (osfs, memfs, a chroot
// of either) as a module source.
func NewLoader(fs billy.Filesystem) *Loader {
	return &Loader{fs: fs, cache: map[string]*Module{}, loading: map[string]bool{}}
}

// NewOSLoader resolves template names relative to rootDir on the local
// filesystem.
func NewOSLoader(rootDir string) *Loader {
	return NewLoader(osfs.New(rootDir))
}

// Load returns the parsed, include-inlined Module for name, from cache
// if already loaded. Re-entering Load for a name already on the
// current load stack is an include cycle. Load does not follow
// extends; inheritance cycles are detected by Resolve.
func (l *Loader) Load(name string) (*Module, error) {
	if m, ok := l.cache[name]; ok {
		return m, nil
	}
	if l.loading[name] {
		return nil, loadErrorf(name, "cycle detected while loading %q", name)
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	src, err := l.readFile(name)
	if err != nil {
		return nil, err
	}
	mod, err := ParseTemplate(name, src)
	if err != nil {
		return nil, err
	}

	if mod.IsExtension {
		for _, blk := range mod.Blocks {
			if err := l.inlineIncludesInBlock(blk); err != nil {
				return nil, err
			}
		}
	} else {
		inlined, err := l.inlineIncludes(mod.Content)
		if err != nil {
			return nil, err
		}
		mod.Content = inlined
	}

	l.cache[name] = mod
	return mod, nil
}

func (l *Loader) readFile(name string) (string, error) {
	f, err := l.fs.Open(name)
	if err != nil {
		return "", loadErrorf(name, "%v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", loadErrorf(name, "%v", err)
	}
	return string(data), nil
}

// inlineIncludes recursively replaces each Stmt(Include) in contents
// with the included Template's own (already-inlined) Content, wrapped
// in a Named block carrying the included template's name so the
// included content renders in its own scope (renderBlock pushes a
// scope for BlockNamed) rather than leaking `set` bindings into the
// including template.
func (l *Loader) inlineIncludes(contents []Content) ([]Content, error) {
	out := make([]Content, 0, len(contents))
	for _, c := range contents {
		switch c.Kind {
		case ContentStatement:
			if c.Stmt != nil && c.Stmt.Kind == StmtInclude {
				inc, err := l.Load(c.Stmt.IncludeName)
				if err != nil {
					return nil, err
				}
				if inc.IsExtension {
					return nil, loadErrorf(c.Stmt.IncludeName, "cannot {%% include %%} an extension template")
				}
				out = append(out, Content{Kind: ContentBlock, Blk: &Block{
					Kind:     BlockNamed,
					Name:     inc.Name,
					Contents: inc.Content,
				}})
				continue
			}
			out = append(out, c)
		case ContentBlock:
			if err := l.inlineIncludesInBlock(c.Blk); err != nil {
				return nil, err
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *Loader) inlineIncludesInBlock(blk *Block) error {
	inner, err := l.inlineIncludes(blk.Contents)
	if err != nil {
		return err
	}
	blk.Contents = inner
	if blk.Else != nil {
		elseInner, err := l.inlineIncludes(blk.Else)
		if err != nil {
			return err
		}
		blk.Else = elseInner
	}
	return nil
}
