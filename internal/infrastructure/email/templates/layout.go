// Package templates provides email template layout
package templates

import (
	"bytes"
	"html/template"
	"log"
)

// EmailLayoutProps wraps rendered content in the outer email shell.
type EmailLayoutProps struct {
	Preheader  string
	Content    string
	FooterText string
}

var layoutTemplate = template.Must(template.New("emailLayout").Parse(`<!doctype html>
<html>
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
  </head>
  <body style="background-color: #f6f6f6; font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.4; margin: 0; padding: 0;">
    <span style="color: transparent; display: none; height: 0; max-height: 0; max-width: 0; opacity: 0; overflow: hidden; visibility: hidden; width: 0;">{{.Preheader}}</span>
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="background-color: #f6f6f6; width: 100%;" width="100%">
      <tr>
        <td>&nbsp;</td>
        <td style="display: block; max-width: 580px; padding: 10px; margin: 0 auto;">
          <div style="background: #ffffff; border-radius: 4px; padding: 24px;">
            {{.Content}}
          </div>
          <div style="color: #999999; font-size: 12px; text-align: center; padding: 16px;">{{.FooterText}}</div>
        </td>
        <td>&nbsp;</td>
      </tr>
    </table>
  </body>
</html>`))

type layoutData struct {
	Preheader  string
	Content    template.HTML
	FooterText string
}

// GetEmailLayout renders the outer shell around pre-rendered content.
func GetEmailLayout(props EmailLayoutProps) string {
	footer := props.FooterText
	if footer == "" {
		footer = "PrepDeck interview preparation"
	}

	var buf bytes.Buffer
	err := layoutTemplate.Execute(&buf, layoutData{
		Preheader:  props.Preheader,
		Content:    template.HTML(props.Content),
		FooterText: footer,
	})
	if err != nil {
		log.Printf("ERROR: failed to render email layout: %v", err)
		return props.Content
	}
	return buf.String()
}
