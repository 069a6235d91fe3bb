package transform

import (
	"bytes"
	"text/template"
)

// TemplateStage renders content as a Go text/template against a fixed
// render context, with strict undefined-variable handling: a reference
// to a key absent from Context fails the render rather than silently
// producing an empty string.
type TemplateStage struct {
	Context map[string]interface{}
	fatal   bool
}

func NewTemplateStage(context map[string]interface{}, fatal bool) *TemplateStage {
	return &TemplateStage{Context: context, fatal: fatal}
}

func (s *TemplateStage) Name() string { return "template" }
func (s *TemplateStage) Fatal() bool  { return s.fatal }

func (s *TemplateStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	tmpl, err := template.New(pc.Path).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return degradeOrFail(s, data, "template: parse failed", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s.Context); err != nil {
		return degradeOrFail(s, data, "template: render failed", err)
	}
	if int64(buf.Len()) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "template: output exceeds limit", nil)
	}
	return Outcome{Data: buf.Bytes()}, nil
}
