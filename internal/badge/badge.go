package badge

import (
	"bytes"
	"text/template"
)

const (
	Subject = "drovah"

	ColorPassing = "#4c1"
	ColorFailing = "#ed2e25"
)

// Options is what a badge shows
type Options struct {
	Subject string
	Status  string
	Color   string
}

// For maps a build status to badge options. Only "passing" and "failing"
// have a badge.
func For(status string) (Options, bool) {
	switch status {
	case "passing":
		return Options{Subject: Subject, Status: status, Color: ColorPassing}, true
	case "failing":
		return Options{Subject: Subject, Status: status, Color: ColorFailing}, true
	default:
		return Options{}, false
	}
}

// Render returns the SVG badge for status, or false when the status has none
func Render(status string) (string, bool) {
	opts, ok := For(status)
	if !ok {
		return "", false
	}
	return RenderOptions(opts), true
}

// charWidth approximates Verdana 11px, which is what the template renders with
const (
	charWidth = 7
	padding   = 10
)

type layout struct {
	Options
	SubjectWidth int
	StatusWidth  int
	Width        int
	SubjectX     int
	StatusX      int
}

var svgTemplate = template.Must(template.New("badge").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="20">
  <linearGradient id="smooth" x2="0" y2="100%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <mask id="round">
    <rect width="{{.Width}}" height="20" rx="3" fill="#fff"/>
  </mask>
  <g mask="url(#round)">
    <rect width="{{.SubjectWidth}}" height="20" fill="#555"/>
    <rect x="{{.SubjectWidth}}" width="{{.StatusWidth}}" height="20" fill="{{.Color}}"/>
    <rect width="{{.Width}}" height="20" fill="url(#smooth)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="11">
    <text x="{{.SubjectX}}" y="15" fill="#010101" fill-opacity=".3">{{.Subject}}</text>
    <text x="{{.SubjectX}}" y="14">{{.Subject}}</text>
    <text x="{{.StatusX}}" y="15" fill="#010101" fill-opacity=".3">{{.Status}}</text>
    <text x="{{.StatusX}}" y="14">{{.Status}}</text>
  </g>
</svg>
`))

// RenderOptions renders an arbitrary badge
func RenderOptions(opts Options) string {
	l := layout{
		Options:      opts,
		SubjectWidth: len(opts.Subject)*charWidth + padding,
		StatusWidth:  len(opts.Status)*charWidth + padding,
	}
	l.Width = l.SubjectWidth + l.StatusWidth
	l.SubjectX = l.SubjectWidth / 2
	l.StatusX = l.SubjectWidth + l.StatusWidth/2

	var buf bytes.Buffer
	// The template only formats ints and strings, so Execute cannot fail
	// on a bytes.Buffer.
	_ = svgTemplate.Execute(&buf, l)
	return buf.String()
}
