package twigx

// Resolve walks name's extends chain into a single renderable Module,
// merging block overrides and rewriting parent() references along the
// way. Cloning on bind, rather than mutating the Loader's cached
// Modules, keeps the Loader's cache immutable and resolution
// side-effect-free; a visited set guards against cyclic references.
func Resolve(loader *Loader, name string) (*Module, error) {
	accumulator := map[string]*Block{}
	visited := map[string]bool{}

	cur, err := loader.Load(name)
	if err != nil {
		return nil, err
	}

	for cur.IsExtension {
		if visited[cur.Name] {
			return nil, resolveErrorf(cur.Name, "inheritance cycle detected")
		}
		visited[cur.Name] = true

		for bn, blk := range cur.Blocks {
			cloned := cloneBlock(blk)
			if existing, ok := accumulator[bn]; ok {
				deepest := existing
				for deepest.Parent != nil {
					deepest = deepest.Parent
				}
				deepest.Parent = cloned
			} else {
				accumulator[bn] = cloned
			}
		}

		if cur.Parent == "" {
			return nil, resolveErrorf(cur.Name, "extension %q declares no parent template", cur.Name)
		}
		next, err := loader.Load(cur.Parent)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	base := cloneContents(cur.Content)
	spliced := spliceOverrides(base, accumulator, map[string]bool{})
	final := rewriteParentReferences(spliced, nil)
	return &Module{Name: name, Content: final}, nil
}

// cloneBlock deep-copies a Block's Content tree. Expressions are never
// mutated after parsing and are shared by reference.
func cloneBlock(b *Block) *Block {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Contents = cloneContents(b.Contents)
	clone.Else = cloneContents(b.Else)
	clone.Parent = nil
	return &clone
}

func cloneContents(contents []Content) []Content {
	if contents == nil {
		return nil
	}
	out := make([]Content, len(contents))
	for i, c := range contents {
		if c.Kind == ContentBlock {
			c.Blk = cloneBlock(c.Blk)
		}
		out[i] = c
	}
	return out
}

// spliceOverrides replaces each Named block in contents whose name has
// an override chain in acc with the head of that chain, attaching the
// base's own block as the chain's deepest parent (so parent() at the
// outermost override eventually reaches the base definition).
func spliceOverrides(contents []Content, acc map[string]*Block, done map[string]bool) []Content {
	out := make([]Content, len(contents))
	for i, c := range contents {
		if c.Kind != ContentBlock || c.Blk == nil {
			out[i] = c
			continue
		}
		blk := c.Blk
		blk.Contents = spliceOverrides(blk.Contents, acc, done)
		blk.Else = spliceOverrides(blk.Else, acc, done)

		if blk.Kind == BlockNamed {
			if chain, ok := acc[blk.Name]; ok {
				if !done[blk.Name] {
					deepest := chain
					for deepest.Parent != nil {
						deepest = deepest.Parent
					}
					deepest.Parent = blk
					done[blk.Name] = true
				}
				out[i] = Content{Kind: ContentBlock, Blk: chain}
				continue
			}
		}
		out[i] = Content{Kind: ContentBlock, Blk: blk}
	}
	return out
}

// rewriteParentReferences replaces every Print(Parent) inside contents
// with a rendering of the nearest enclosing Named block's Parent,
// recursively resolving that parent's own parent() references first.
// A Print(Parent) with no enclosing parent (base template, or an
// unreachable chain) becomes empty text rather than an error.
func rewriteParentReferences(contents []Content, enclosing *Block) []Content {
	out := make([]Content, len(contents))
	for i, c := range contents {
		switch c.Kind {
		case ContentPrint:
			if c.Expr != nil && c.Expr.Kind == ExprParent {
				if enclosing == nil || enclosing.Parent == nil {
					out[i] = Content{Kind: ContentText, Text: ""}
				} else {
					out[i] = Content{Kind: ContentBlock, Blk: &Block{
						Kind:     BlockNamed,
						Name:     enclosing.Parent.Name,
						Contents: rewriteParentReferences(enclosing.Parent.Contents, enclosing.Parent),
					}}
				}
			} else {
				out[i] = c
			}
		case ContentBlock:
			blk := c.Blk
			next := enclosing
			if blk.Kind == BlockNamed {
				next = blk
			}
			blk.Contents = rewriteParentReferences(blk.Contents, next)
			if blk.Kind == BlockIf && blk.Else != nil {
				blk.Else = rewriteParentReferences(blk.Else, enclosing)
			}
			out[i] = Content{Kind: ContentBlock, Blk: blk}
		default:
			out[i] = c
		}
	}
	return out
}
