// Command twigrender renders a single template and writes the result
// to stdout, so the engine can be exercised without embedding it in a
// Go program. Modeled on pgavlin-yomlette's cmd/yparse for the
// color/colorable error-printing shape and on urfave/cli/v2's standard
// App/Flags/Action layout for the command surface.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/urfave/cli/v2"

	"github.com/twigx/twigx"
)

func main() {
	app := &cli.App{
		Name:      "twigrender",
		Usage:     "render a Twig-dialect template",
		ArgsUsage: "<template-name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Value:   ".",
				Usage:   "template root directory",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "path to a JSON file of template data ('-' for stdin)",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "fail on undefined variable lookups instead of substituting null",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colorized error output",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		colored := !boolFlagFromArgs(os.Args, "no-color") && !color.NoColor
		out := io.Writer(os.Stderr)
		if colored {
			out = colorable.NewColorableStderr()
		}
		fmt.Fprintln(out, twigx.FormatError(err, colored))
		os.Exit(1)
	}
}

// boolFlagFromArgs is a best-effort scan for --no-color so the
// top-level error path (which runs after cli has already failed to
// parse, in the usage-error case) still respects it.
func boolFlagFromArgs(args []string, name string) bool {
	flag := "--" + name
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func run(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("usage: twigrender [flags] <template-name>", 2)
	}
	name := c.Args().First()
	root := c.String("root")

	data, err := loadData(c.String("data"))
	if err != nil {
		return err
	}

	registry := twigx.NewMapRegistry()
	opts := twigx.Options{Strict: c.Bool("strict")}

	out, err := twigx.RenderWithOptions(root, name, data, registry, opts)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func loadData(path string) (*twigx.OrderedMap, error) {
	if path == "" {
		return twigx.NewOrderedMap(), nil
	}
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return twigx.DataFromJSON(raw)
}
