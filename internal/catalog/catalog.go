// Package catalog описывает упорядоченный каталог шагов —
// возможностей воркеров, из которых собирается pipeline.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrUnknownStep — шаг отсутствует в каталоге.
var ErrUnknownStep = errors.New("unknown step")

// Entry — описание одной возможности воркера.
type Entry struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog — упорядоченный список допустимых шагов.
type Catalog struct {
	Steps []Entry `yaml:"steps" json:"steps"`

	// Strict — отклонять шаги, которых нет в каталоге.
	Strict bool `yaml:"strict" json:"strict"`
}

// Default возвращает каталог микросервисов ML-платформы.
func Default() *Catalog {
	return &Catalog{
		Steps: []Entry{
			{Name: "data-preparer", Description: "cleans and validates the dataset"},
			{Name: "model-selector", Description: "picks candidate models for the dataset"},
			{Name: "hyperparameter-search", Description: "tunes hyperparameters of selected models"},
			{Name: "trainer", Description: "trains the selected model"},
			{Name: "evaluator", Description: "computes evaluation metrics"},
			{Name: "deployer", Description: "deploys the trained model"},
		},
	}
}

// Load читает каталог из YAML файла.
//
// Формат:
//
//	strict: true
//	steps:
//	  - name: data-preparer
//	    description: ...
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse разбирает каталог из YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Steps) == 0 {
		return nil, fmt.Errorf("parse catalog: no steps defined")
	}

	seen := make(map[string]bool, len(c.Steps))
	for i, e := range c.Steps {
		if e.Name == "" {
			return nil, fmt.Errorf("parse catalog: step %d has empty name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("parse catalog: duplicate step %q", e.Name)
		}
		seen[e.Name] = true
	}
	return &c, nil
}

// Names возвращает имена шагов в порядке каталога.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Steps))
	for i, e := range c.Steps {
		names[i] = e.Name
	}
	return names
}

// Contains проверяет наличие шага в каталоге.
func (c *Catalog) Contains(name string) bool {
	return slices.ContainsFunc(c.Steps, func(e Entry) bool { return e.Name == name })
}

// Check проверяет список шагов. В нестрогом режиме пропускает всё.
func (c *Catalog) Check(steps []string) error {
	if c == nil || !c.Strict {
		return nil
	}
	for _, s := range steps {
		if !c.Contains(s) {
			return fmt.Errorf("%w: %s", ErrUnknownStep, s)
		}
	}
	return nil
}
