package workout

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// File is the in-memory, normalized workout tree produced by parsing a ZWO
// workout file (spec §6). Author/name/description/sportType are metadata
// carried for display and round-tripping; they have no effect on scheduling.
type File struct {
	Author      string
	Name        string
	Description string
	SportType   string
	Steps       []Step
}

// knownStepTags is the set of element tags recognized inside <workout>.
// Anything else is a parse error (spec §6: "unknown element tags are a
// parse error").
var knownStepTags = map[string]bool{
	"Warmup": true, "Ramp": true, "Cooldown": true,
	"SteadyState": true, "IntervalsT": true, "FreeRide": true,
}

// Load reads and parses a ZWO workout file from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workout file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses a ZWO workout file from r. It is a thin normalization layer
// over encoding/xml: raw PascalCase attributes become typed Step values.
func Parse(r io.Reader) (*File, error) {
	dec := xml.NewDecoder(r)

	var wf File
	var inWorkout bool

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse workout xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "author":
				wf.Author = decodeCharData(dec)
			case t.Name.Local == "name":
				wf.Name = decodeCharData(dec)
			case t.Name.Local == "description":
				wf.Description = decodeCharData(dec)
			case t.Name.Local == "sportType":
				wf.SportType = decodeCharData(dec)
			case t.Name.Local == "workout":
				inWorkout = true
			case inWorkout:
				if !knownStepTags[t.Name.Local] {
					return nil, fmt.Errorf("unknown workout step tag %q", t.Name.Local)
				}
				attrs := make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					attrs[a.Name.Local] = a.Value
				}
				step, err := NewStep(t.Name.Local, attrs)
				if err != nil {
					return nil, err
				}
				wf.Steps = append(wf.Steps, step)
			}
		case xml.EndElement:
			if t.Name.Local == "workout" {
				inWorkout = false
			}
		}
	}

	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("workout contains no steps")
	}

	return &wf, nil
}

// decodeCharData reads the character data immediately following the current
// start element (used for simple leaf elements like <author>Jane</author>).
func decodeCharData(dec *xml.Decoder) string {
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if cd, ok := tok.(xml.CharData); ok {
		return strings.TrimSpace(string(cd))
	}
	return ""
}

// Marshal serializes the workout tree back to ZWO XML. Used by the
// parse->serialize->reparse round-trip test (spec §8); it is not needed by
// the running controller.
func (f *File) Marshal() ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<workout_file>`)
	fmt.Fprintf(&b, "<author>%s</author>", xmlEscape(f.Author))
	fmt.Fprintf(&b, "<name>%s</name>", xmlEscape(f.Name))
	fmt.Fprintf(&b, "<description>%s</description>", xmlEscape(f.Description))
	fmt.Fprintf(&b, "<sportType>%s</sportType>", xmlEscape(f.SportType))
	b.WriteString(`<workout>`)
	for _, s := range f.Steps {
		writeStepXML(&b, s)
	}
	b.WriteString(`</workout>`)
	b.WriteString(`</workout_file>`)
	return []byte(b.String()), nil
}

func writeStepXML(b *strings.Builder, s Step) {
	switch v := s.(type) {
	case *Warmup:
		fmt.Fprintf(b, `<Warmup Duration="%s" PowerLow="%s" PowerHigh="%s"/>`,
			fmtNum(v.DurationS), fmtNum(v.PowerLow), fmtNum(v.PowerHigh))
	case *Ramp:
		fmt.Fprintf(b, `<Ramp Duration="%s" PowerLow="%s" PowerHigh="%s"/>`,
			fmtNum(v.DurationS), fmtNum(v.PowerLow), fmtNum(v.PowerHigh))
	case *Cooldown:
		fmt.Fprintf(b, `<Cooldown Duration="%s" PowerLow="%s" PowerHigh="%s"/>`,
			fmtNum(v.DurationS), fmtNum(v.PowerLow), fmtNum(v.PowerHigh))
	case *SteadyState:
		fmt.Fprintf(b, `<SteadyState Duration="%s" Power="%s"/>`, fmtNum(v.DurationS), fmtNum(v.Power))
	case *FreeRide:
		fmt.Fprintf(b, `<FreeRide Duration="%s" FlatRoad="%s"/>`, fmtNum(v.DurationS), fmtNum(v.FlatRoad))
	case *IntervalsT:
		fmt.Fprintf(b, `<IntervalsT Repeat="%d" OnDuration="%s" OffDuration="%s" OnPower="%s" OffPower="%s"/>`,
			v.Repeat, fmtNum(v.OnDurationS), fmtNum(v.OffDurationS), fmtNum(v.OnPower), fmtNum(v.OffPower))
	}
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func parseFloatOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
