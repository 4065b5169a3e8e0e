package artifacts

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Placeholders substituted into templates.
const (
	CenterPlaceholder = "__CENTER__"
	CyclePlaceholder  = "__CYCLE__"
)

// Metrics are the summary quantities plotted for every request.
var Metrics = []string{"ImpPerOb", "FracImp", "ObCnt", "TotImp", "FracNeuObs", "FracBenObs"}

// Template names an expected output file and how its cache key is derived.
type Template struct {
	// Path is the local file path with placeholders.
	Path string
	// KeyPrefix is prepended to the file's base name inside the fingerprint namespace.
	KeyPrefix string
}

// Resolve substitutes placeholders in the template path.
func (t Template) Resolve(substitutions map[string]string) string {
	path := t.Path
	for placeholder, value := range substitutions {
		path = strings.ReplaceAll(path, placeholder, value)
	}
	return path
}

// Key returns the cache key for a resolved file.
func (t Template) Key(fingerprint, resolved string) string {
	return fingerprint + "/" + t.KeyPrefix + filepath.Base(resolved)
}

// CycleString concatenates cycles as zero-padded hours with a Z suffix,
// e.g. ["0", "12"] becomes "00Z12Z".
func CycleString(cycles []string) string {
	var b strings.Builder
	for _, cycle := range cycles {
		if hour, err := strconv.Atoi(strings.TrimSpace(cycle)); err == nil {
			fmt.Fprintf(&b, "%02dZ", hour)
			continue
		}
		b.WriteString(cycle)
		b.WriteString("Z")
	}
	return b.String()
}

// SummaryTemplates lists the per-center summary plots under summaryRoot.
func SummaryTemplates(summaryRoot string) []Template {
	out := make([]Template, 0, len(Metrics))
	for _, metric := range Metrics {
		name := fmt.Sprintf("%s_%s_%s.png", CenterPlaceholder, metric, CyclePlaceholder)
		out = append(out, Template{Path: filepath.Join(summaryRoot, CenterPlaceholder, name)})
	}
	return out
}

// CompareTemplates lists the comparison plots under compareRoot.
func CompareTemplates(compareRoot string) []Template {
	out := make([]Template, 0, len(Metrics))
	for _, metric := range Metrics {
		name := fmt.Sprintf("%s_%s.png", metric, CyclePlaceholder)
		out = append(out, Template{Path: filepath.Join(compareRoot, name), KeyPrefix: "comparefull_"})
	}
	return out
}
