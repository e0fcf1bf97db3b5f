// Package templates provides email template components
package templates

import (
	"bytes"
	"html/template"
	"log"
)

// ReminderEmailProps carries the data for the interview reminder email.
type ReminderEmailProps struct {
	Name          string
	Company       string
	Role          string
	InterviewDate string
	PrepURL       string
}

var reminderTemplate = template.Must(template.New("reminderEmail").Parse(`
    <p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0; margin-bottom: 16px;">Hi {{.Name}},</p>
    <p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0; margin-bottom: 16px;">Your interview for the <strong>{{.Role}}</strong> role at <strong>{{.Company}}</strong> is coming up on {{.InterviewDate}}.</p>
    <p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0; margin-bottom: 16px;"><a href="{{.PrepURL}}" target="_blank">Review your prep deck</a> to refresh your research, notes, and practice answers before the big day.</p>
    <p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0;">Good luck!</p>`))

// GetReminderEmailContent renders the reminder email body.
func GetReminderEmailContent(props ReminderEmailProps) string {
	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, props); err != nil {
		log.Printf("ERROR: failed to render reminder email template: %v", err)
		return ""
	}
	return buf.String()
}
