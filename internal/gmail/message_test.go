package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/stretchr/testify/assert"
	gmailapi "google.golang.org/api/gmail/v1"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func multipartMessage() *gmailapi.Message {
	return &gmailapi.Message{
		Id:       "m1",
		ThreadId: "t1",
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "subject", Value: " Resume for Java role "},
				{Name: "From", Value: "Jane Doe <jane@example.com>"},
			},
			Parts: []*gmailapi.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmailapi.MessagePart{
						{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: encode("5 years Java developer\n")}},
						{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encode("<p>5 years <b>Java</b> developer</p>")}},
					},
				},
				{
					MimeType: "application/pdf",
					Filename: "Jane_CV.pdf",
					Body:     &gmailapi.MessagePartBody{AttachmentId: "att-1", Size: 2048},
				},
				{
					MimeType: "image/png",
					Filename: "logo.png",
					Body:     &gmailapi.MessagePartBody{AttachmentId: "att-2", Size: 10},
				},
			},
		},
	}
}

func TestParseMessage(t *testing.T) {
	email := ParseMessage(multipartMessage())

	assert.Equal(t, "m1", email.ID)
	assert.Equal(t, "t1", email.ThreadID)
	assert.Equal(t, "Resume for Java role", email.Subject)
	assert.Equal(t, "Jane Doe <jane@example.com>", email.From)
	assert.Equal(t, "5 years Java developer", email.Body)
	assert.Equal(t, []models.Attachment{
		{Filename: "Jane_CV.pdf", MimeType: "application/pdf", AttachmentID: "att-1", Size: 2048},
		{Filename: "logo.png", MimeType: "image/png", AttachmentID: "att-2", Size: 10},
	}, email.Attachments)
	assert.True(t, email.HasPDF())
}

func TestParseMessage_HTMLOnly(t *testing.T) {
	msg := &gmailapi.Message{
		Id: "m2",
		Payload: &gmailapi.MessagePart{
			MimeType: "text/html",
			Body: &gmailapi.MessagePartBody{
				Data: encode(`<html><head><style>p {color: red}</style></head><body><p>Hi, I am Sam</p><p>from&nbsp;Boston &amp; Co</p><script>alert(1)</script></body></html>`),
			},
		},
	}

	email := ParseMessage(msg)
	assert.Equal(t, "Hi, I am Sam from Boston & Co", email.Body)
	assert.Empty(t, email.Subject)
	assert.False(t, email.HasPDF())
}

func TestParseMessage_NoPayload(t *testing.T) {
	email := ParseMessage(&gmailapi.Message{Id: "m3"})
	assert.Equal(t, "m3", email.ID)
	assert.Empty(t, email.Body)
	assert.Empty(t, email.Attachments)
}

func TestDecodeBase64(t *testing.T) {
	raw := "résumé?>>"
	for name, in := range map[string]string{
		"padded url":   base64.URLEncoding.EncodeToString([]byte(raw)),
		"unpadded url": base64.RawURLEncoding.EncodeToString([]byte(raw)),
		"standard":     base64.StdEncoding.EncodeToString([]byte(raw)),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := decodeBase64(in)
			assert.NoError(t, err)
			assert.Equal(t, raw, string(out))
		})
	}

	_, err := decodeBase64("!!not base64!!")
	assert.Error(t, err)
}

func TestSenderName(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{from: "Jane Doe <jane@example.com>", want: "Jane Doe"},
		{from: `"Doe, Jane" <jane@example.com>`, want: "Doe, Jane"},
		{from: "jane.doe@example.com", want: "jane.doe"},
		{from: "<jane@example.com>", want: "jane"},
		{from: "", want: "Unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SenderName(tt.from), tt.from)
	}
}
