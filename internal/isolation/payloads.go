package isolation

import "strings"

// MaliciousPayloads are adversarial query inputs every service must reject.
// Acceptance of any of them is a security regression, not a soft failure.
var MaliciousPayloads = []string{
	"'; DROP TABLE candidates; --",
	"\" OR \"1\"=\"1",
	"<script>alert('xss')</script>",
	"{{7*7}}",
	"$(cat /etc/passwd)",
	"../../../etc/passwd",
	"\x00\x01\x02\x1b[2J",
	strings.Repeat("A", 100_000),
}
