package transform

import (
	"bytes"
	"encoding/csv"
	"encoding/json"

	"github.com/russross/blackfriday/v2"
	"gopkg.in/yaml.v3"
)

// MarkdownStage renders Markdown to HTML via blackfriday.
type MarkdownStage struct {
	fatal bool
}

func NewMarkdownStage(fatal bool) *MarkdownStage { return &MarkdownStage{fatal: fatal} }

func (s *MarkdownStage) Name() string { return "markdown-html" }
func (s *MarkdownStage) Fatal() bool  { return s.fatal }

func (s *MarkdownStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	out := blackfriday.Run(data)
	if int64(len(out)) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "markdown: output exceeds limit", nil)
	}
	return Outcome{Data: out}, nil
}

// csvDoc is the wire shape shared by CSVJSONStage and JSONCSVStage: header
// and rows are kept as parallel slices, not a map, so that the pair of
// stages round-trips a CSV file's column order and row order exactly
// (a JSON object keyed by column name would lose that order — Go maps
// have no defined iteration order and encoding/json sorts object keys
// alphabetically on marshal).
type csvDoc struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// CSVJSONStage converts CSV with a header row into a JSON document
// preserving header and row order (see csvDoc).
type CSVJSONStage struct {
	fatal bool
}

func NewCSVJSONStage(fatal bool) *CSVJSONStage { return &CSVJSONStage{fatal: fatal} }

func (s *CSVJSONStage) Name() string { return "csv-json" }
func (s *CSVJSONStage) Fatal() bool  { return s.fatal }

func (s *CSVJSONStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return degradeOrFail(s, data, "csv: parse failed", err)
	}
	if len(rows) == 0 {
		return Outcome{Data: []byte(`{"header":[],"rows":[]}`)}, nil
	}

	doc := csvDoc{Header: rows[0], Rows: rows[1:]}
	out, err := json.Marshal(doc)
	if err != nil {
		return degradeOrFail(s, data, "csv: json encode failed", err)
	}
	if int64(len(out)) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "csv: output exceeds limit", nil)
	}
	return Outcome{Data: out}, nil
}

// JSONCSVStage converts a csvDoc-shaped JSON document back into CSV,
// the inverse of CSVJSONStage.
type JSONCSVStage struct {
	fatal bool
}

func NewJSONCSVStage(fatal bool) *JSONCSVStage { return &JSONCSVStage{fatal: fatal} }

func (s *JSONCSVStage) Name() string { return "json-csv" }
func (s *JSONCSVStage) Fatal() bool  { return s.fatal }

func (s *JSONCSVStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	var doc csvDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return degradeOrFail(s, data, "json: parse failed", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(doc.Header) > 0 {
		if err := w.Write(doc.Header); err != nil {
			return degradeOrFail(s, data, "json: csv header write failed", err)
		}
	}
	for _, row := range doc.Rows {
		if err := w.Write(row); err != nil {
			return degradeOrFail(s, data, "json: csv row write failed", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return degradeOrFail(s, data, "json: csv flush failed", err)
	}

	out := buf.Bytes()
	if int64(len(out)) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "json: output exceeds limit", nil)
	}
	return Outcome{Data: out}, nil
}

// YAMLJSONStage re-encodes a YAML document as JSON.
type YAMLJSONStage struct {
	fatal bool
}

func NewYAMLJSONStage(fatal bool) *YAMLJSONStage { return &YAMLJSONStage{fatal: fatal} }

func (s *YAMLJSONStage) Name() string { return "yaml-json" }
func (s *YAMLJSONStage) Fatal() bool  { return s.fatal }

func (s *YAMLJSONStage) Apply(pc PathContext, data []byte, limits Limits) (Outcome, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return degradeOrFail(s, data, "yaml: parse failed", err)
	}
	out, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return degradeOrFail(s, data, "yaml: json encode failed", err)
	}
	if int64(len(out)) > limits.MaxOutputSize {
		return degradeOrFail(s, data, "yaml: output exceeds limit", nil)
	}
	return Outcome{Data: out}, nil
}

// normalizeYAML recurses through the map[string]interface{} and
// []interface{} values yaml.v3 produces, copying each level. A mapping
// with non-string keys decodes to map[interface{}]interface{}, which is
// left as is; json.Marshal rejects it and the stage degrades or fails.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return t
	}
}
