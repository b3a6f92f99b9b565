package twigx

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
)

func TestResolveSimpleBlockOverride(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "base.twig", "before {% block body %}base body{% endblock %} after")
	writeFile(t, fs, "child.twig", `{% extends "base.twig" %}{% block body %}child body{% endblock %}`)
	loader := NewLoader(fs)
	mod, err := Resolve(loader, "child.twig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := renderContents(mod.Content, NewEnvironment(nil, NewMapRegistry(), false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "before child body after" {
		t.Errorf("expected 'before child body after', got %q", out)
	}
}

func TestResolveParentCallInsertsBaseContent(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "base.twig", "{% block body %}base{% endblock %}")
	writeFile(t, fs, "child.twig", `{% extends "base.twig" %}{% block body %}child + {{ parent() }}{% endblock %}`)
	loader := NewLoader(fs)
	mod, err := Resolve(loader, "child.twig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := renderContents(mod.Content, NewEnvironment(nil, NewMapRegistry(), false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "child + base" {
		t.Errorf("expected 'child + base', got %q", out)
	}
}

func TestResolveParentCallInBaseTemplateIsEmpty(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "base.twig", "{% block body %}root: {{ parent() }}{% endblock %}")
	loader := NewLoader(fs)
	mod, err := Resolve(loader, "base.twig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := renderContents(mod.Content, NewEnvironment(nil, NewMapRegistry(), false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "root: " {
		t.Errorf("expected 'root: ', got %q", out)
	}
}

func TestResolveThreeLevelChainedParentCalls(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "grandparent.twig", "{% block body %}gp{% endblock %}")
	writeFile(t, fs, "parent.twig", `{% extends "grandparent.twig" %}{% block body %}p+{{ parent() }}{% endblock %}`)
	writeFile(t, fs, "child.twig", `{% extends "parent.twig" %}{% block body %}c+{{ parent() }}{% endblock %}`)
	loader := NewLoader(fs)
	mod, err := Resolve(loader, "child.twig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := renderContents(mod.Content, NewEnvironment(nil, NewMapRegistry(), false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "c+p+gp" {
		t.Errorf("expected 'c+p+gp', got %q", out)
	}
}

func TestResolveUnoverriddenBlockFallsThroughToBase(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "base.twig", "[{% block a %}A{% endblock %}][{% block b %}B{% endblock %}]")
	writeFile(t, fs, "child.twig", `{% extends "base.twig" %}{% block a %}A2{% endblock %}`)
	loader := NewLoader(fs)
	mod, err := Resolve(loader, "child.twig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := renderContents(mod.Content, NewEnvironment(nil, NewMapRegistry(), false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "[A2][B]" {
		t.Errorf("expected '[A2][B]', got %q", out)
	}
}

func TestResolveMissingParentTemplateIsLoadError(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "child.twig", `{% extends "missing.twig" %}{% block a %}x{% endblock %}`)
	loader := NewLoader(fs)
	_, err := Resolve(loader, "child.twig")
	if err == nil {
		t.Fatalf("expected an error resolving a missing parent template")
	}
	if kind, ok := KindOf(err); !ok || kind != KindLoad {
		t.Errorf("expected KindLoad, got %v", err)
	}
}

func TestResolveInheritanceCycleIsDetected(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "a.twig", `{% extends "b.twig" %}{% block x %}a{% endblock %}`)
	writeFile(t, fs, "b.twig", `{% extends "a.twig" %}{% block x %}b{% endblock %}`)
	loader := NewLoader(fs)
	_, err := Resolve(loader, "a.twig")
	if err == nil {
		t.Fatalf("expected an inheritance cycle error")
	}
	if kind, ok := KindOf(err); !ok || kind != KindResolve {
		t.Errorf("expected KindResolve, got %v", err)
	}
}

func TestResolveDoesNotMutateLoaderCache(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "base.twig", "{% block body %}base{% endblock %}")
	writeFile(t, fs, "child.twig", `{% extends "base.twig" %}{% block body %}child{% endblock %}`)
	loader := NewLoader(fs)
	if _, err := Resolve(loader, "child.twig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	baseMod, err := loader.Load("base.twig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := renderContents(baseMod.Content, NewEnvironment(nil, NewMapRegistry(), false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "base" {
		t.Errorf("resolving child.twig must not mutate the Loader's cached base.twig Module, got %q", out)
	}
}
