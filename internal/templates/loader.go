package templates

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/contest-radar/contest-engine/internal/models"
)

// Payload is the channel-agnostic data a message template renders from
type Payload struct {
	ContestName     string
	Platform        string
	StartTime       string
	HoursUntilStart int
	URL             string
}

// Rendered is the outcome of rendering one message template
type Rendered struct {
	Subject string
	Body    string
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Loader manages loading and caching of notification message templates.
// Built-in defaults cover every notification type; YAML files on disk
// override them per type.
type Loader struct {
	mu        sync.RWMutex
	templates map[models.NotificationType]*messageTemplate
}

type templateFile struct {
	Type    string `yaml:"type"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// NewLoader creates a loader pre-populated with the built-in templates
func NewLoader() *Loader {
	l := &Loader{
		templates: make(map[models.NotificationType]*messageTemplate),
	}

	for typ, tf := range defaults {
		tmpl, err := compile(tf)
		if err != nil {
			// Defaults are static; a compile failure is a programming error.
			panic(fmt.Sprintf("invalid built-in template %s: %v", typ, err))
		}
		l.templates[typ] = tmpl
	}

	return l
}

var defaults = map[models.NotificationType]templateFile{
	models.TypeContestReminder: {
		Subject: "{{.ContestName}} starts in {{.HoursUntilStart}} hours",
		Body: "{{.ContestName}} on {{.Platform}} starts at {{.StartTime}} " +
			"(in about {{.HoursUntilStart}} hours).\n\n{{.URL}}",
	},
	models.TypeContestStarting: {
		Subject: "{{.ContestName}} is starting now",
		Body:    "{{.ContestName}} on {{.Platform}} is starting now.\n\n{{.URL}}",
	},
	models.TypeContestEnding: {
		Subject: "{{.ContestName}} is ending soon",
		Body:    "{{.ContestName}} on {{.Platform}} is about to end. Submit your solutions!\n\n{{.URL}}",
	},
	models.TypeSystemAlert: {
		Subject: "Contest tracker alert",
		Body:    "{{.ContestName}}",
	},
}

func compile(tf templateFile) (*messageTemplate, error) {
	subject, err := template.New("subject").Parse(tf.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subject: %w", err)
	}

	body, err := template.New("body").Parse(tf.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse body: %w", err)
	}

	return &messageTemplate{subject: subject, body: body}, nil
}

// LoadFromDir loads all YAML template overrides from a directory
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading message templates", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load message template", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("message templates loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single template override from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	typ := models.NotificationType(tf.Type)
	if _, known := defaults[typ]; !known {
		return fmt.Errorf("unknown notification type %q", tf.Type)
	}
	if tf.Subject == "" || tf.Body == "" {
		return fmt.Errorf("subject and body are required")
	}

	tmpl, err := compile(tf)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.templates[typ] = tmpl
	l.mu.Unlock()

	return nil
}

// Render produces the subject and body for a notification type
func (l *Loader) Render(typ models.NotificationType, p Payload) (Rendered, error) {
	l.mu.RLock()
	tmpl := l.templates[typ]
	l.mu.RUnlock()

	if tmpl == nil {
		return Rendered{}, fmt.Errorf("no template for notification type %q", typ)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, p); err != nil {
		return Rendered{}, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, p); err != nil {
		return Rendered{}, fmt.Errorf("failed to render body: %w", err)
	}

	return Rendered{Subject: subject.String(), Body: body.String()}, nil
}
