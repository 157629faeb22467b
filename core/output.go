package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// RawField is a single native tag as found in the container, used for raw
// dumps next to the canonical record.
type RawField struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
}

// Printer handles all display output for the CLI.
type Printer struct {
	JSON   bool
	Writer io.Writer
}

// NewPrinter creates a default Printer writing to stdout.
func NewPrinter(jsonMode bool) *Printer {
	return &Printer{JSON: jsonMode, Writer: os.Stdout}
}

// PrintRecord renders a MediaRecord to the configured output. info is the
// format of the handler that read it; raw fields it can edit are flagged.
func (p *Printer) PrintRecord(rec *MediaRecord, info FormatInfo, raw []RawField) {
	if p.JSON {
		p.printJSON(rec, info, raw)
		return
	}
	p.printText(rec, info, raw)
}

func (p *Printer) printText(rec *MediaRecord, info FormatInfo, raw []RawField) {
	size := "unknown"
	if rec.Size != nil {
		size = fmt.Sprintf("%d bytes", *rec.Size)
	}
	fmt.Fprintf(p.Writer, "File  : %s\n", rec.Path)
	fmt.Fprintf(p.Writer, "Kind  : %s\n", rec.Kind)
	if info.Name != "" {
		fmt.Fprintf(p.Writer, "Format: %s (%s)\n", info.Name, info.Container)
	}
	if info.Notes != "" {
		fmt.Fprintf(p.Writer, "Notes : %s\n", info.Notes)
	}
	fmt.Fprintln(p.Writer)
	rows := [][2]string{
		{"Title", rec.Title},
		{"Description", rec.Description},
		{"Tags", rec.TagString()},
		{"Comment", rec.Comment},
		{"Created", rec.Created},
		{"Year", rec.YearString()},
		{"Duration", FormatFloat(rec.Duration)},
		{"Size", size},
		{"Coords", rec.GPS.Coords()},
		{"City", rec.GPS.City},
		{"Country", rec.GPS.Country},
		{"Country code", rec.GPS.CountryCode},
	}
	for _, row := range rows {
		fmt.Fprintf(p.Writer, "  %-30s %s\n", row[0]+":", row[1])
	}

	if len(raw) == 0 {
		return
	}
	fmt.Fprintln(p.Writer)

	// Group by category
	groups := make(map[string][]RawField)
	order := []string{}
	for _, f := range raw {
		if _, seen := groups[f.Category]; !seen {
			order = append(order, f.Category)
		}
		groups[f.Category] = append(groups[f.Category], f)
	}
	for _, cat := range order {
		fmt.Fprintf(p.Writer, "── %s ──\n", cat)
		for _, f := range groups[cat] {
			edit := ""
			if info.Editable(f.Key) {
				edit = " [editable]"
			}
			fmt.Fprintf(p.Writer, "  %-30s %s%s\n", f.Key+":", f.Value, edit)
		}
		fmt.Fprintln(p.Writer)
	}
}

func (p *Printer) printJSON(rec *MediaRecord, info FormatInfo, raw []RawField) {
	type jsonField struct {
		RawField
		Editable bool `json:"editable"`
	}
	fields := make([]jsonField, 0, len(raw))
	for _, f := range raw {
		fields = append(fields, jsonField{RawField: f, Editable: info.Editable(f.Key)})
	}
	out := struct {
		*MediaRecord
		Format    string      `json:"format,omitempty"`
		Container string      `json:"container,omitempty"`
		Raw       []jsonField `json:"raw,omitempty"`
	}{MediaRecord: rec, Format: info.Name, Container: info.Container, Raw: fields}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(p.Writer, string(b))
}

// PrintSuccess prints a success message.
func (p *Printer) PrintSuccess(msg string) {
	fmt.Fprintln(p.Writer, "✓ "+msg)
}

// PrintInfo prints an info line (suppressed in JSON mode).
func (p *Printer) PrintInfo(msg string) {
	if !p.JSON {
		fmt.Fprintln(p.Writer, strings.TrimRight(msg, "\n"))
	}
}

// PrintError prints an error to stderr.
func PrintError(msg string) {
	fmt.Fprintln(os.Stderr, "✗ Error: "+msg)
}
