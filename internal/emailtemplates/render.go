package emailtemplates

import (
	"bytes"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// Rendered is a template with its placeholders filled in.
type Rendered struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// compiled holds parsed templates. HTML bodies are escaped contextually;
// subject and text are plain.
type compiled struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// compile parses every part. Missing variables render as empty strings.
func compile(subject, html string, text *string) (*compiled, error) {
	c := &compiled{}
	var err error
	if c.subject, err = texttemplate.New("subject").Option("missingkey=zero").Parse(subject); err != nil {
		return nil, err
	}
	if c.html, err = htmltemplate.New("html").Option("missingkey=zero").Parse(html); err != nil {
		return nil, err
	}
	if text != nil && *text != "" {
		if c.text, err = texttemplate.New("text").Option("missingkey=zero").Parse(*text); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *compiled) execute(vars map[string]string) (*Rendered, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	var subject, html, text bytes.Buffer
	if err := c.subject.Execute(&subject, vars); err != nil {
		return nil, err
	}
	if err := c.html.Execute(&html, vars); err != nil {
		return nil, err
	}
	if c.text != nil {
		if err := c.text.Execute(&text, vars); err != nil {
			return nil, err
		}
	}
	return &Rendered{Subject: subject.String(), HTML: html.String(), Text: text.String()}, nil
}

func render(tpl models.EmailTemplate, vars map[string]string) (*Rendered, error) {
	c, err := compile(tpl.Subject, tpl.HTMLBody, tpl.TextBody)
	if err != nil {
		return nil, err
	}
	return c.execute(vars)
}
