package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pan-thu/lets-talk-sub000/core"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	core.ParseEmailTemplates(core.NoopLogger)
	svc := NewConsoleServiceMock(&core.Config{
		AppName:          "Masomo",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Masomo", Address: "noreply@localhost"},
	})
	to := []mail.Address{{Name: "amani", Address: "amani@masomo.test"}}

	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "Plain", BodyStr: "hello"},
		&core.EmailMessage{
			To:           to,
			Subject:      "Payment confirmed",
			TemplateName: "payment_approved",
			TemplateData: map[string]interface{}{"ReferenceID": "3F2A9C-b71e-482913", "CourseTitle": "Swahili 101"},
		},
		&core.EmailMessage{Subject: "Nobody to send to", BodyStr: "lost"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, "3F2A9C-b71e-482913")
	assert.Contains(t, sent[1].HTMLContent, "Swahili 101")
}
