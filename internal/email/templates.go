package email

import (
	"fmt"
	"html"
	"strings"

	"birthdays/internal/models"
)

// Templates provides email template generation.
type Templates struct {
	siteTitle string
	baseURL   string
}

// NewTemplates creates a new templates instance.
func NewTemplates(siteTitle, baseURL string) *Templates {
	return &Templates{siteTitle: siteTitle, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// baseHTML wraps content in a consistent HTML email template.
func (t *Templates) baseHTML(title, content, unsubscribeURL string) string {
	unsubscribe := ""
	if unsubscribeURL != "" {
		unsubscribe = fmt.Sprintf(`<p><a href="%s">Unsubscribe from these emails</a></p>`, html.EscapeString(unsubscribeURL))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #db2777; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
        .footer { background: #f3f4f6; padding: 15px; text-align: center; font-size: 12px; color: #6b7280; border-radius: 0 0 8px 8px; border: 1px solid #e5e7eb; border-top: none; }
        .button { display: inline-block; background: #db2777; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin: 10px 0; }
        .info-box { background: white; border: 1px solid #e5e7eb; border-radius: 6px; padding: 15px; margin: 15px 0; }
        .label { font-weight: 600; color: #374151; }
    </style>
</head>
<body>
    <div class="header">
        <h1>%s</h1>
    </div>
    <div class="content">
        %s
    </div>
    <div class="footer">
        <p>This email was sent by %s</p>
        <p><a href="%s">%s</a></p>
        %s
    </div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(t.siteTitle), content, html.EscapeString(t.siteTitle), t.baseURL, t.baseURL, unsubscribe)
}

func (t *Templates) textFooter(unsubscribeURL string) string {
	footer := fmt.Sprintf("--\n%s\n%s", t.siteTitle, t.baseURL)
	if unsubscribeURL != "" {
		footer += "\nUnsubscribe: " + unsubscribeURL
	}
	return footer
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SubmissionReceived generates the email telling an owner about a new submission.
func (t *Templates) SubmissionReceived(owner *models.User, link *models.SharingLink, sub *models.BirthdaySubmission, unsubscribeURL string) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("[%s] New birthday suggestion: %s", t.siteTitle, sub.Name)

	submitter := optional(sub.SubmitterName)
	if submitter == "" {
		submitter = "Someone"
	}

	var rows strings.Builder
	rows.WriteString(fmt.Sprintf(`<p><span class="label">Name:</span> %s</p>`, html.EscapeString(sub.Name)))
	rows.WriteString(fmt.Sprintf(`<p><span class="label">Date:</span> %s</p>`, html.EscapeString(sub.Date.String())))
	if sub.Relationship != nil {
		rows.WriteString(fmt.Sprintf(`<p><span class="label">Relationship:</span> %s</p>`, html.EscapeString(*sub.Relationship)))
	}
	if sub.Notes != nil {
		rows.WriteString(fmt.Sprintf(`<p><span class="label">Notes:</span> %s</p>`, html.EscapeString(*sub.Notes)))
	}
	if link.Description != nil {
		rows.WriteString(fmt.Sprintf(`<p><span class="label">Via link:</span> %s</p>`, html.EscapeString(*link.Description)))
	}

	content := fmt.Sprintf(`
        <p>Hi %s,</p>
        <p>%s suggested a birthday for your list. It is waiting for your review.</p>

        <div class="info-box">
            %s
        </div>

        <p style="text-align: center;">
            <a href="%s/submissions" class="button">Review Submissions</a>
        </p>
    `,
		html.EscapeString(owner.DisplayName()),
		html.EscapeString(submitter),
		rows.String(),
		t.baseURL,
	)

	htmlBody = t.baseHTML(subject, content, unsubscribeURL)

	textBody = fmt.Sprintf(`New birthday suggestion

%s suggested a birthday for your list.

Name: %s
Date: %s

Review at: %s/submissions

%s`,
		submitter,
		sub.Name,
		sub.Date.String(),
		t.baseURL,
		t.textFooter(unsubscribeURL),
	)

	return subject, htmlBody, textBody
}

// PendingSummary generates the daily digest of submissions awaiting review.
func (t *Templates) PendingSummary(owner *models.User, pending int, unsubscribeURL string) (subject, htmlBody, textBody string) {
	noun := "submissions"
	if pending == 1 {
		noun = "submission"
	}
	subject = fmt.Sprintf("[%s] %d birthday %s awaiting review", t.siteTitle, pending, noun)

	content := fmt.Sprintf(`
        <p>Hi %s,</p>
        <p>You have <strong>%d</strong> birthday %s waiting for your review.</p>

        <p style="text-align: center;">
            <a href="%s/submissions" class="button">Review Submissions</a>
        </p>
    `,
		html.EscapeString(owner.DisplayName()),
		pending,
		noun,
		t.baseURL,
	)

	htmlBody = t.baseHTML(subject, content, unsubscribeURL)

	textBody = fmt.Sprintf(`You have %d birthday %s waiting for your review.

Review at: %s/submissions

%s`,
		pending,
		noun,
		t.baseURL,
		t.textFooter(unsubscribeURL),
	)

	return subject, htmlBody, textBody
}

// BirthdayReminder generates the email listing today's birthdays.
func (t *Templates) BirthdayReminder(owner *models.User, birthdays []models.Birthday, unsubscribeURL string) (subject, htmlBody, textBody string) {
	names := make([]string, len(birthdays))
	for i, b := range birthdays {
		names[i] = b.Name
	}
	subject = fmt.Sprintf("[%s] Birthdays today: %s", t.siteTitle, strings.Join(names, ", "))

	var items, lines strings.Builder
	for _, b := range birthdays {
		items.WriteString(fmt.Sprintf("<li>%s</li>", html.EscapeString(b.Name)))
		lines.WriteString(fmt.Sprintf("- %s\n", b.Name))
	}

	content := fmt.Sprintf(`
        <p>Hi %s,</p>
        <p>Don't forget to wish a happy birthday to:</p>

        <div class="info-box">
            <ul>%s</ul>
        </div>
    `,
		html.EscapeString(owner.DisplayName()),
		items.String(),
	)

	htmlBody = t.baseHTML(subject, content, unsubscribeURL)

	textBody = fmt.Sprintf(`Birthdays today

%s
%s`,
		lines.String(),
		t.textFooter(unsubscribeURL),
	)

	return subject, htmlBody, textBody
}
