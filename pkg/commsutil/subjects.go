package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectRequests = "hostrpc.requests"
	SubjectEvents   = "hostrpc.events"
)

// BuildEventSubject builds the subject an event for subscriptionID travels on. Events are
// partitioned by receiver; a wildcard receiver uses the bare prefix.
func BuildEventSubject(prefix, subscriptionID string) string {
	receiver := subscriptionID
	if i := strings.Index(subscriptionID, "."); i >= 0 {
		receiver = subscriptionID[:i]
	}
	if receiver == "" || receiver == "*" {
		return prefix
	}
	return fmt.Sprintf("%s.%s", prefix, sanitizeToken(receiver))
}

// EventSubjects returns the subjects a client listens on to see every event under prefix.
func EventSubjects(prefix string) []string {
	return []string{prefix, prefix + ".>"}
}

// sanitizeToken keeps a subject token free of COMMS wildcard and separator characters.
func sanitizeToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
