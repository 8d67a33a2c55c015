// Package prompts holds the prompt texts sent to the generation service.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/coreybb/horoscope/models"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalogYAML []byte

// Catalog is the set of prompts used by the service.
type Catalog struct {
	Daily     string `yaml:"daily"`
	Horoscope string `yaml:"horoscope"`

	horoscopeTmpl *template.Template
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return parse(defaultCatalogYAML, nil)
}

// Load reads a catalog from path. An empty path returns the embedded catalog,
// and keys missing from the file keep their embedded values.
func Load(path string) (*Catalog, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return parse(data, base)
}

func parse(data []byte, base *Catalog) (*Catalog, error) {
	var c Catalog
	if base != nil {
		c.Daily = base.Daily
		c.Horoscope = base.Horoscope
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	c.Daily = strings.TrimSpace(c.Daily)
	if c.Daily == "" {
		return nil, fmt.Errorf("prompts: daily prompt is empty")
	}
	if strings.TrimSpace(c.Horoscope) == "" {
		return nil, fmt.Errorf("prompts: horoscope template is empty")
	}

	tmpl, err := template.New("horoscope").Option("missingkey=error").Parse(c.Horoscope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse horoscope template: %w", err)
	}
	c.horoscopeTmpl = tmpl
	return &c, nil
}

// DailyPrompt is the fixed, user-independent prompt of the daily run.
func (c *Catalog) DailyPrompt() string {
	return c.Daily
}

// HoroscopePrompt renders the on-demand horoscope prompt for the given birth data.
func (c *Catalog) HoroscopePrompt(b models.BirthData) (string, error) {
	var buf bytes.Buffer
	if err := c.horoscopeTmpl.Execute(&buf, b); err != nil {
		return "", fmt.Errorf("failed to render horoscope prompt: %w", err)
	}
	return buf.String(), nil
}
