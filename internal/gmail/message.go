package gmail

import (
	"encoding/base64"
	"strings"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	gmailapi "google.golang.org/api/gmail/v1"
)

// ParseMessage converts a full-format Gmail message into an Email
func ParseMessage(msg *gmailapi.Message) models.Email {
	email := models.Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload == nil {
		return email
	}

	for _, header := range msg.Payload.Headers {
		switch {
		case strings.EqualFold(header.Name, "Subject"):
			email.Subject = strings.TrimSpace(header.Value)
		case strings.EqualFold(header.Name, "From"):
			email.From = header.Value
		}
	}

	email.Body = messageBody(msg.Payload)
	collectAttachments(msg.Payload, &email.Attachments)
	return email
}

// messageBody prefers the first text/plain part and falls back to stripped HTML
func messageBody(payload *gmailapi.MessagePart) string {
	if body := partText(payload, "text/plain"); body != "" {
		return strings.TrimSpace(body)
	}
	if body := partText(payload, "text/html"); body != "" {
		return stripHTML(body)
	}
	return ""
}

func partText(part *gmailapi.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Filename == "" && part.Body != nil && part.Body.Data != "" {
		data, err := decodeBase64(part.Body.Data)
		if err == nil {
			return string(data)
		}
		log.Debug().Err(err).Str("mime_type", mimeType).Msg("Error decoding message body")
	}
	for _, p := range part.Parts {
		mt := strings.ToLower(p.MimeType)
		if strings.HasPrefix(mt, "text/") || strings.HasPrefix(mt, "multipart/") {
			if body := partText(p, mimeType); body != "" {
				return body
			}
		}
	}
	return ""
}

func collectAttachments(part *gmailapi.MessagePart, out *[]models.Attachment) {
	if part == nil {
		return
	}
	if part.Filename != "" && part.Body != nil {
		*out = append(*out, models.Attachment{
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			AttachmentID: part.Body.AttachmentId,
			Size:         part.Body.Size,
		})
	}
	for _, p := range part.Parts {
		collectAttachments(p, out)
	}
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "ul": true, "ol": true,
}

// stripHTML returns the visible text of an HTML document with whitespace collapsed
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case blockTags[tag]:
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case (tag == "script" || tag == "style") && skip > 0:
				skip--
			case blockTags[tag]:
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// decodeBase64 decodes Gmail's URL-safe base64, with or without padding
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return data, nil
	}
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// SenderName extracts a display name from a From header.
// "Jane Doe <jane@example.com>" gives "Jane Doe" and a bare address gives its local part.
func SenderName(from string) string {
	from = strings.TrimSpace(from)
	if idx := strings.Index(from, "<"); idx > 0 {
		if name := strings.Trim(strings.TrimSpace(from[:idx]), `"'`); name != "" {
			return name
		}
	}
	addr := strings.Trim(from, "<> ")
	if idx := strings.Index(addr, "@"); idx > 0 {
		return addr[:idx]
	}
	return "Unknown"
}
