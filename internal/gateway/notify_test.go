package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifierCoalescesDuplicateNotices(t *testing.T) {
	now := time.Unix(2000, 0)
	var emitted []string
	notifier := NewCoalescingNotifier(func(message string) {
		emitted = append(emitted, message)
	}, 1200*time.Millisecond, func() time.Time { return now })

	notifier.Notify("service temporarily unavailable")
	notifier.Notify("service temporarily unavailable")
	assert.Equal(t, []string{"service temporarily unavailable"}, emitted, "duplicate inside the window is suppressed")

	// A different message inside the window still goes through.
	notifier.Notify("request timed out, please retry")
	assert.Len(t, emitted, 2)

	// The same message again after the window has passed is emitted.
	now = now.Add(1300 * time.Millisecond)
	notifier.Notify("request timed out, please retry")
	assert.Equal(t, []string{
		"service temporarily unavailable",
		"request timed out, please retry",
		"request timed out, please retry",
	}, emitted)
}
