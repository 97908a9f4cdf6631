package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/emmapowers/trellis-sub001/internal/errors"
)

// Config contains template configuration.
type Config struct {
	// ProjectName is the name of the project.
	ProjectName string
}

// Template represents a project template.
type Template struct {
	// Name is the template name.
	Name string

	// Description describes the template.
	Description string

	// Entry is the path to pass to 'trellis-client run'.
	Entry string

	// Files is a map of relative paths to file contents.
	Files map[string]string
}

// Available templates.
var templates = map[string]*Template{
	"starter": starterTemplate(),
	"module":  moduleTemplate(),
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.New("T506").
			WithDetail("Template '" + name + "' not found").
			WithSuggestion("Available templates: " + strings.Join(List(), ", "))
	}
	return tmpl, nil
}

// List returns all available template names, sorted.
func List() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create generates a project from the template.
func (t *Template) Create(dir string, cfg Config) error {
	for relPath, content := range t.Files {
		// Execute template
		tmpl, err := template.New(relPath).Parse(content)
		if err != nil {
			return errors.Newf(errors.CategoryCLI, "invalid template %s: %v", relPath, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, cfg); err != nil {
			return errors.Newf(errors.CategoryCLI, "template execute error %s: %v", relPath, err)
		}

		// Write file
		fullPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return err
		}

		if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			return err
		}
	}

	return nil
}

// starterTemplate returns the single-file starter template.
func starterTemplate() *Template {
	return &Template{
		Name:        "starter",
		Description: "Single-file counter app",
		Entry:       "app.py",
		Files: map[string]string{
			"app.py": `"""{{.ProjectName}} - a Trellis application."""

import trellis as tr


@tr.page("/")
def home(state):
    count = state.setdefault("count", 0)

    def increment():
        state["count"] = count + 1

    def reset():
        state["count"] = 0

    return tr.column(
        tr.text(f"Count: {count}"),
        tr.row(
            tr.button("Increment", on_click=increment),
            tr.button("Reset", on_click=reset),
        ),
        tr.link("About", to="/about"),
    )


@tr.page("/about")
def about(state):
    return tr.column(
        tr.text("{{.ProjectName}}"),
        tr.link("Back", to="/"),
    )
`,
			"README.md": `# {{.ProjectName}}

A Trellis application.

## Getting Started

` + "```" + `bash
# Run under a sandboxed local worker
trellis-client run app.py

# Restart when the source changes
trellis-client run app.py --watch
` + "```" + `

## Configuration

trellis.json records the wire codec, routing mode, theme and worker
settings. To attach to a hosted application instead of running one
locally, record its URL and use 'trellis-client connect'.
`,
		},
	}
}

// moduleTemplate returns the package-layout template.
func moduleTemplate() *Template {
	return &Template{
		Name:        "module",
		Description: "Package layout with pages split across files",
		Entry:       "app",
		Files: map[string]string{
			"app/__init__.py": `"""{{.ProjectName}} application package."""

from . import pages  # noqa: F401
`,
			"app/pages.py": `import trellis as tr


@tr.page("/")
def home(state):
    count = state.setdefault("count", 0)

    def increment():
        state["count"] = count + 1

    return tr.column(
        tr.text(f"Count: {count}"),
        tr.button("Increment", on_click=increment),
        tr.link("About", to="/about"),
    )


@tr.page("/about")
def about(state):
    return tr.column(
        tr.text("{{.ProjectName}}"),
        tr.link("Back", to="/"),
    )
`,
			"README.md": `# {{.ProjectName}}

A Trellis application, laid out as a package.

## Getting Started

` + "```" + `bash
# Run the package under a sandboxed local worker
trellis-client run app

# Restart when any source file changes
trellis-client run app --watch
` + "```" + `

## Project Structure

` + "```" + `
{{.ProjectName}}/
├── app/
│   ├── __init__.py      # Package entry
│   └── pages.py         # Page definitions
├── trellis.json         # Client configuration
└── README.md
` + "```" + `
`,
		},
	}
}
