package phase

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// Grammar selects how a log line is parsed.
type Grammar int

const (
	// GrammarAuto picks the grammar from the first non-blank line: a line
	// starting with '{' selects JSON, anything else selects delimited.
	GrammarAuto Grammar = iota
	// GrammarDelimited is comma-separated: phase id, status token, free-form fields.
	GrammarDelimited
	// GrammarJSON is one JSON object per line with a "phase" object.
	GrammarJSON
)

// HeaderToken is the first field of the delimited grammar's header row.
const HeaderToken = "phase"

// String implements fmt.Stringer.
func (g Grammar) String() string {
	switch g {
	case GrammarAuto:
		return "auto"
	case GrammarDelimited:
		return "delimited"
	case GrammarJSON:
		return "json"
	default:
		return fmt.Sprintf("grammar(%d)", int(g))
	}
}

// ParseGrammar maps a configuration value to a Grammar.
func ParseGrammar(name string) (Grammar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return GrammarAuto, nil
	case "delimited", "csv":
		return GrammarDelimited, nil
	case "json", "jsonl", "ndjson":
		return GrammarJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedGrammar, name)
	}
}

// LineKind tags the variant held by a parsed Line.
type LineKind int

const (
	LineBlank LineKind = iota
	LineHeader
	LineRecord
)

// Line is the tagged result of parsing one log line. Record is meaningful
// only when Kind is LineRecord, Header only when Kind is LineHeader.
type Line struct {
	Kind   LineKind
	Header []string
	Record Record
}

// Parser turns log lines into Lines. It is stateful: it remembers the
// grammar chosen in auto mode and the delimited header, so one Parser
// must be used per log. A Parser is not safe for concurrent use.
type Parser struct {
	grammar Grammar
	header  []string
	lineNo  int
}

// NewParser returns a parser for the given grammar.
func NewParser(g Grammar) *Parser {
	return &Parser{grammar: g}
}

// Grammar returns the grammar in effect. In auto mode it stays GrammarAuto
// until the first non-blank line has been seen.
func (p *Parser) Grammar() Grammar {
	return p.grammar
}

// Parse parses one line. Errors wrap ErrMalformedLine, ErrUnknownStatus or
// ErrUnsupportedGrammar; callers skip such lines.
func (p *Parser) Parse(line string) (Line, error) {
	p.lineNo++
	line = strings.TrimSpace(line)
	if line == "" {
		return Line{Kind: LineBlank}, nil
	}

	if p.grammar == GrammarAuto {
		if strings.HasPrefix(line, "{") {
			p.grammar = GrammarJSON
		} else {
			p.grammar = GrammarDelimited
		}
	}

	switch p.grammar {
	case GrammarDelimited:
		return p.parseDelimited(line)
	case GrammarJSON:
		return p.parseJSON(line)
	default:
		return Line{}, fmt.Errorf("%w: %s", ErrUnsupportedGrammar, p.grammar)
	}
}

func (p *Parser) parseDelimited(line string) (Line, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil {
		return Line{}, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, p.lineNo, err)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if strings.EqualFold(fields[0], HeaderToken) {
		p.header = fields
		return Line{Kind: LineHeader, Header: fields}, nil
	}
	if len(fields) < 2 || fields[0] == "" {
		return Line{}, fmt.Errorf("%w: line %d: want at least phase and status fields", ErrMalformedLine, p.lineNo)
	}

	status, err := ParseStatus(fields[1])
	if err != nil {
		return Line{}, fmt.Errorf("line %d: %w", p.lineNo, err)
	}

	payload := make(Payload, len(fields)-2)
	for i := 2; i < len(fields); i++ {
		name := fmt.Sprintf("field_%d", i)
		if i < len(p.header) && p.header[i] != "" {
			name = p.header[i]
		}
		raw, _ := json.Marshal(fields[i])
		payload[name] = raw
	}

	rec := Record{
		PhaseID: fields[0],
		Status:  status,
		Payload: payload,
		LineNo:  p.lineNo,
	}
	if status == StatusError {
		rec.Message = delimitedMessage(payload, fields, p.header != nil)
	}
	return Line{Kind: LineRecord, Record: rec}, nil
}

// delimitedMessage picks the error text: a named error/message column when
// a header is known, otherwise the first free-form field.
func delimitedMessage(payload Payload, fields []string, haveHeader bool) string {
	for _, key := range []string{"error", "message"} {
		if s, ok := payload.String(key); ok && s != "" {
			return s
		}
	}
	if !haveHeader && len(fields) > 2 {
		return fields[2]
	}
	return ""
}

// phaseObject is the required "phase" member of a JSON record.
type phaseObject struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (p *Parser) parseJSON(line string) (Line, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Line{}, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, p.lineNo, err)
	}

	phaseRaw, ok := raw["phase"]
	if !ok {
		return Line{}, fmt.Errorf("%w: line %d: missing phase object", ErrMalformedLine, p.lineNo)
	}
	var obj phaseObject
	if err := json.Unmarshal(phaseRaw, &obj); err != nil {
		return Line{}, fmt.Errorf("%w: line %d: phase: %v", ErrMalformedLine, p.lineNo, err)
	}
	if obj.ID == "" {
		return Line{}, fmt.Errorf("%w: line %d: empty phase id", ErrMalformedLine, p.lineNo)
	}

	status, err := ParseStatus(obj.Status)
	if err != nil {
		return Line{}, fmt.Errorf("line %d: %w", p.lineNo, err)
	}

	delete(raw, "phase")
	rec := Record{
		PhaseID: obj.ID,
		Status:  status,
		Payload: Payload(raw),
		LineNo:  p.lineNo,
	}
	if status == StatusError {
		rec.Message = firstNonEmpty(obj.Error, obj.Message)
		if rec.Message == "" {
			for _, key := range []string{"error", "message"} {
				if s, ok := rec.Payload.String(key); ok && s != "" {
					rec.Message = s
					break
				}
			}
		}
	}
	return Line{Kind: LineRecord, Record: rec}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
