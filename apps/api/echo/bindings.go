package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
)

const (
	statusParam   = "status"
	courseIDParam = "course_id"
)

// bindPaymentFilter reads `?status=A,B&status=C&course_id=X`.
func bindPaymentFilter(ctx echo.Context) enrollment.PaymentFilter {
	var filter enrollment.PaymentFilter
	data := ctx.QueryParams()
	if len(data) == 0 {
		return filter
	}

	for _, val := range data[statusParam] {
		for _, status := range strings.Split(val, ",") {
			status = strings.ToUpper(strings.TrimSpace(status))
			if status != "" {
				filter.Statuses = append(filter.Statuses, enrollment.PaymentStatus(status))
			}
		}
	}
	filter.CourseID = data.Get(courseIDParam)
	filter.Clean()
	return filter
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type proofRequest struct {
	ProofImageURL string `json:"proof_image_url"`
}

type completionRequest struct {
	EnrollmentID string `json:"enrollment_id"`
	IsCompleted  bool   `json:"is_completed"`
}
