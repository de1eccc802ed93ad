package enrollment

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	refCoursePrefixLen = 6
	refUserFragmentLen = 4
)

// NewReferenceID builds the human-quotable payment reference `<COURSE>-<user>-<ts>`, e.g. `3F2A9C-b71e-482913`.
func NewReferenceID(courseID, userID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%06d",
		strings.ToUpper(alnumPrefix(courseID, refCoursePrefixLen)),
		alnumPrefix(userID, refUserFragmentLen),
		now.UnixMilli()%1_000_000,
	)
}

func alnumPrefix(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= n {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
