package params

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrNoInferenceCommand is returned when a run requests no inference at all.
var ErrNoInferenceCommand = errors.New("params: no inference command selected")

// InferenceCommand selects the analysis the service runs on a study.
type InferenceCommand string

const (
	// SmartUrgences yields pathology detection.
	SmartUrgences InferenceCommand = "smarturgences"
	// SmartXpert yields anatomical measurements.
	SmartXpert InferenceCommand = "smartxpert"
)

// OutputFormat is the form the annotated images come back in.
type OutputFormat string

const (
	// Overlay copies the original image with annotations in a separate tag.
	Overlay OutputFormat = "overlay"
	// Highbit burns the annotations into the pixel array.
	Highbit OutputFormat = "highbit"
	// GSPS returns a presentation state drawn on top of the original image.
	GSPS OutputFormat = "gsps"
	// SecondaryCapture returns a secondary capture image.
	SecondaryCapture OutputFormat = "secondary_capture"
)

// Language of the annotations.
type Language string

const (
	French     Language = "fr"
	English    Language = "en"
	Spanish    Language = "es"
	German     Language = "de"
	Italian    Language = "it"
	Portuguese Language = "pt"
)

// OutputSelection restricts which outputs are produced.
type OutputSelection string

const (
	SelectAll         OutputSelection = "all"
	SelectNoRecap     OutputSelection = "no_recap"
	SelectNoNegatives OutputSelection = "no_negatives"
	SelectNone        OutputSelection = "none"
)

// RecapTheme is the color theme of the recap image.
type RecapTheme string

const (
	ThemeDark  RecapTheme = "dark"
	ThemeLight RecapTheme = "light"
)

// StructuredReportFormat is the level of detail of the structured report.
type StructuredReportFormat string

const (
	StructuredLite   StructuredReportFormat = "lite"
	StructuredNormal StructuredReportFormat = "normal"
	StructuredFull   StructuredReportFormat = "full"
	StructuredNone   StructuredReportFormat = "none"
)

// StaticReportFormat is the encoding of the static report.
type StaticReportFormat string

const (
	StaticRGB  StaticReportFormat = "rgb"
	StaticPDF  StaticReportFormat = "pdf"
	StaticNone StaticReportFormat = "none"
)

var (
	inferenceCommands = []InferenceCommand{SmartUrgences, SmartXpert}
	outputFormats     = []OutputFormat{Overlay, Highbit, GSPS, SecondaryCapture}
	languages         = []Language{French, English, Spanish, German, Italian, Portuguese}
	outputSelections  = []OutputSelection{SelectAll, SelectNoRecap, SelectNoNegatives, SelectNone}
	recapThemes       = []RecapTheme{ThemeDark, ThemeLight}
	structuredFormats = []StructuredReportFormat{StructuredLite, StructuredNormal, StructuredFull, StructuredNone}
	staticFormats     = []StaticReportFormat{StaticRGB, StaticPDF, StaticNone}
)

// Set is one configuration requested against a study. Every field except
// InferenceCommand is optional: the zero value means "not set" and the
// parameter is left out of the request.
type Set struct {
	SignedURL              *bool
	OutputFormat           OutputFormat
	Language               Language
	InferenceCommand       InferenceCommand
	Timezone               string
	OutputSelection        OutputSelection
	RecapTheme             RecapTheme
	StructuredReportFormat StructuredReportFormat
	StaticReportFormat     StaticReportFormat
}

// Default returns the service's documented default parameters.
func Default() Set {
	return Set{
		OutputFormat:       Overlay,
		Language:           French,
		InferenceCommand:   SmartUrgences,
		OutputSelection:    SelectAll,
		RecapTheme:         ThemeDark,
		StaticReportFormat: StaticRGB,
	}
}

// Query encodes the set as request query parameters.
func (s Set) Query() url.Values {
	q := url.Values{}
	if s.SignedURL != nil {
		q.Set("signed_url", strconv.FormatBool(*s.SignedURL))
	}
	setIf(q, "output_format", string(s.OutputFormat))
	setIf(q, "language", string(s.Language))
	q.Set("inference_command", string(s.InferenceCommand))
	setIf(q, "timezone", s.Timezone)
	setIf(q, "output_selection", string(s.OutputSelection))
	setIf(q, "recap_theme", string(s.RecapTheme))
	setIf(q, "structured_report_format", string(s.StructuredReportFormat))
	setIf(q, "static_report_format", string(s.StaticReportFormat))
	return q
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// Validate reports the first field holding a value the service does not know.
func (s Set) Validate() error {
	if s.InferenceCommand == "" {
		return ErrNoInferenceCommand
	}
	if err := oneOf("inference_command", s.InferenceCommand, inferenceCommands); err != nil {
		return err
	}
	if err := optional("output_format", s.OutputFormat, outputFormats); err != nil {
		return err
	}
	if err := optional("language", s.Language, languages); err != nil {
		return err
	}
	if err := optional("output_selection", s.OutputSelection, outputSelections); err != nil {
		return err
	}
	if err := optional("recap_theme", s.RecapTheme, recapThemes); err != nil {
		return err
	}
	if err := optional("structured_report_format", s.StructuredReportFormat, structuredFormats); err != nil {
		return err
	}
	return optional("static_report_format", s.StaticReportFormat, staticFormats)
}

func (s Set) String() string {
	return string(s.InferenceCommand)
}

// Build expands a template into one Set per inference command, in order.
func Build(template Set, commands ...InferenceCommand) ([]Set, error) {
	if len(commands) == 0 {
		return nil, ErrNoInferenceCommand
	}
	sets := make([]Set, 0, len(commands))
	seen := make(map[InferenceCommand]bool, len(commands))
	for _, cmd := range commands {
		if seen[cmd] {
			continue
		}
		seen[cmd] = true
		s := template
		s.InferenceCommand = cmd
		if err := s.Validate(); err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, nil
}

func optional[T ~string](name string, v T, allowed []T) error {
	if v == "" {
		return nil
	}
	return oneOf(name, v, allowed)
}

func oneOf[T ~string](name string, v T, allowed []T) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("params: invalid %s %q (allowed: %v)", name, v, allowed)
}
