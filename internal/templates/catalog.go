package templates

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v2"

	"shiftoffer_backend/internal/models"
)

//go:embed notification_templates.yaml
var defaultCatalog []byte

// Entry - шаблон уведомления одного типа
type Entry struct {
	Type          string `yaml:"type"`
	Subject       string `yaml:"subject"`
	Body          string `yaml:"body"`
	SMS           string `yaml:"sms"`
	EmailTemplate string `yaml:"email_template"`
	Priority      int    `yaml:"priority"`

	subject *template.Template
	body    *template.Template
	sms     *template.Template
}

type catalogFile struct {
	Templates []Entry `yaml:"templates"`
}

// Rendered - готовый текст уведомления
type Rendered struct {
	Subject       string
	Body          string
	SMS           string
	EmailTemplate string
	Priority      int
}

// Catalog - тип уведомления -> шаблоны заголовка и текста
type Catalog struct {
	entries map[models.NotificationType]*Entry
}

// Load читает каталог из файла; пустой путь - встроенный каталог
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read templates %s: %w", path, err)
		}
		raw = data
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	c := &Catalog{entries: make(map[models.NotificationType]*Entry, len(file.Templates))}
	for i := range file.Templates {
		e := &file.Templates[i]
		if e.Type == "" {
			return nil, fmt.Errorf("template #%d has no type", i)
		}
		var err error
		if e.subject, err = template.New(e.Type + ".subject").Option("missingkey=zero").Parse(e.Subject); err != nil {
			return nil, fmt.Errorf("template %s subject: %w", e.Type, err)
		}
		if e.body, err = template.New(e.Type + ".body").Option("missingkey=zero").Parse(e.Body); err != nil {
			return nil, fmt.Errorf("template %s body: %w", e.Type, err)
		}
		smsText := e.SMS
		if smsText == "" {
			smsText = e.Body
		}
		if e.sms, err = template.New(e.Type + ".sms").Option("missingkey=zero").Parse(smsText); err != nil {
			return nil, fmt.Errorf("template %s sms: %w", e.Type, err)
		}
		if e.EmailTemplate == "" {
			e.EmailTemplate = "notification"
		}
		c.entries[models.NotificationType(e.Type)] = e
	}
	return c, nil
}

// Has - есть ли шаблон для типа
func (c *Catalog) Has(t models.NotificationType) bool {
	_, ok := c.entries[t]
	return ok
}

// Render подставляет vars в шаблоны типа
func (c *Catalog) Render(t models.NotificationType, vars map[string]any) (*Rendered, error) {
	e, ok := c.entries[t]
	if !ok {
		return nil, fmt.Errorf("no template for notification type %s", t)
	}

	exec := func(tpl *template.Template) (string, error) {
		var buf bytes.Buffer
		if err := tpl.Execute(&buf, vars); err != nil {
			return "", err
		}
		return strings.TrimSpace(buf.String()), nil
	}

	subject, err := exec(e.subject)
	if err != nil {
		return nil, fmt.Errorf("render %s subject: %w", t, err)
	}
	body, err := exec(e.body)
	if err != nil {
		return nil, fmt.Errorf("render %s body: %w", t, err)
	}
	sms, err := exec(e.sms)
	if err != nil {
		return nil, fmt.Errorf("render %s sms: %w", t, err)
	}

	return &Rendered{
		Subject:       subject,
		Body:          body,
		SMS:           sms,
		EmailTemplate: e.EmailTemplate,
		Priority:      e.Priority,
	}, nil
}
