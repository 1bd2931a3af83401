package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// RenderMessage substitutes the single supported personalization token with
// the customer's display name. Unresolved tokens stay verbatim.
func RenderMessage(template, name string) string {
	return strings.ReplaceAll(template, "[Name]", name)
}

func NewDispatchID() string {
	// ULID is sortable (nice for DB indexes and dashboards)
	t := time.Now().UTC()
	return "dsp_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
