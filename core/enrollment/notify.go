package enrollment

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pan-thu/lets-talk-sub000/core"
)

const (
	tmplPaymentApproved = "payment_approved"
	tmplPaymentRejected = "payment_rejected"
)

// notifyPayer emails the outcome of a payment review; failures are only logged.
func (svc *Service) notifyPayer(ctx context.Context, pmt Payment, enr Enrollment, ev Event) {
	if pmt.PayerEmail == "" {
		return
	}

	var courseTitle string
	if crs, err := svc.courseRepo.GetCourse(ctx, enr.CourseID); err != nil {
		svc.logger.Warn(fmt.Sprintf("enrollment.notifyPayer: finding course %s: %v", enr.CourseID, err), err)
	} else {
		courseTitle = crs.Title
	}

	tmpl, subject := tmplPaymentRejected, "Payment not confirmed"
	if ev == EventApprove {
		tmpl, subject = tmplPaymentApproved, "Payment confirmed"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: pmt.PayerEmail}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{
			"ReferenceID": pmt.ReferenceID,
			"CourseTitle": courseTitle,
			"Reason":      pmt.Notes.String,
		},
	})
}
