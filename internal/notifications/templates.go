package notifications

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/angelmondragon/tastecert-backend/pkg/mailer"
)

const (
	templateSubmissionAdmin  = "submission_admin"
	templateEvaluationResult = "evaluation_result"
	templateCertificate      = "certificate_issued"
)

var htmlLayout = template.Must(template.New("email").Parse(`<!doctype html>
<html><body style="font-family:Helvetica,Arial,sans-serif;color:#222">
<h2 style="color:#8a6d1d">{{.Heading}}</h2>
{{range .Paragraphs}}<p>{{.}}</p>{{end}}
{{if .Link}}<p><a href="{{.Link}}">{{.LinkLabel}}</a></p>{{end}}
<p style="color:#888;font-size:12px">TasteCert</p>
</body></html>`))

type emailContent struct {
	Heading    string
	Paragraphs []string
	Link       string
	LinkLabel  string
}

func (e emailContent) message(to []string, subject string) (mailer.Message, error) {
	var html bytes.Buffer
	if err := htmlLayout.Execute(&html, e); err != nil {
		return mailer.Message{}, fmt.Errorf("render email: %w", err)
	}
	var text bytes.Buffer
	text.WriteString(e.Heading + "\n\n")
	for _, p := range e.Paragraphs {
		text.WriteString(p + "\n\n")
	}
	if e.Link != "" {
		text.WriteString(e.LinkLabel + ": " + e.Link + "\n")
	}
	return mailer.Message{To: to, Subject: subject, TextBody: text.String(), HTMLBody: html.String()}, nil
}
