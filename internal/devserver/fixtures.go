package devserver

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrorKey is the fragment key carrying the error banner.
const ErrorKey = "_error"

const defaultPage = `<!DOCTYPE html>
<html><head><title>{{.VM}}</title></head>
<body><div id="_body"></div><div id="_error"></div></body></html>
`

const defaultError = `<div id="_error" class="error">{{.}}</div>`

// FragmentFixture is one rendered entry of a command response.
type FragmentFixture struct {
	ID       string `yaml:"id"`
	Template string `yaml:"template"`
}

// Fixtures describes the pages and command responses the server renders.
// Command keys are full identifiers such as "lights/set".
type Fixtures struct {
	Page     string                       `yaml:"page"`
	Pages    map[string]string            `yaml:"pages"`
	Error    string                       `yaml:"error"`
	Commands map[string][]FragmentFixture `yaml:"commands"`
}

// LoadFixtures reads a fixture YAML file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for cmd, frags := range f.Commands {
		if strings.Count(cmd, "/") != 1 {
			return nil, fmt.Errorf("command %q: identifier must be <module>/<action>", cmd)
		}
		for i, fr := range frags {
			if fr.ID == "" {
				return nil, fmt.Errorf("command %q: fragment %d has no id", cmd, i)
			}
		}
	}
	return &f, nil
}

// templates holds the parsed fixture templates.
type templates struct {
	page     *template.Template
	pages    map[string]*template.Template
	err      *template.Template
	commands map[string][]fragmentTemplate
}

type fragmentTemplate struct {
	id   string
	tmpl *template.Template
}

func compile(f *Fixtures) (*templates, error) {
	t := &templates{
		pages:    make(map[string]*template.Template),
		commands: make(map[string][]fragmentTemplate),
	}

	var err error
	if t.page, err = template.New("page").Parse(orDefault(f.Page, defaultPage)); err != nil {
		return nil, fmt.Errorf("page template: %w", err)
	}
	if t.err, err = template.New(ErrorKey).Parse(orDefault(f.Error, defaultError)); err != nil {
		return nil, fmt.Errorf("error template: %w", err)
	}
	for vm, src := range f.Pages {
		p, err := template.New("page:" + vm).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("page %q: %w", vm, err)
		}
		t.pages[vm] = p
	}
	for cmd, frags := range f.Commands {
		for _, fr := range frags {
			ft, err := template.New(cmd + "#" + fr.ID).Parse(fr.Template)
			if err != nil {
				return nil, fmt.Errorf("command %q fragment %q: %w", cmd, fr.ID, err)
			}
			t.commands[cmd] = append(t.commands[cmd], fragmentTemplate{id: fr.ID, tmpl: ft})
		}
	}
	return t, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func render(t *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
