package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe  = regexp.MustCompile(`\{SEQ(\d+)\}`)
	derivedRe = regexp.MustCompile(`^(\d{2})(\d{2})(\d{4})(\d{3,})$`)
)

// DefaultTemplate renders creation date then the ordinal padded to at least
// three digits, e.g. 05032024007.
const DefaultTemplate = "{DD}{MM}{YYYY}{SEQ3}"

// Format renders a derived invoice number from template, the creation time
// (already in the billing time zone) and the ordinal. {SEQn} pads to a
// minimum width of n and never truncates.
func Format(template string, createdAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", createdAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", createdAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", createdAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", createdAt.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice number template: %s", out)
	}
	return out, nil
}

// IsDerived reports whether number has the shape of a generated number: a
// real DDMMYYYY date followed by at least three digits. Formal numbers of
// that shape are refused so they can never collide with generated ones.
func IsDerived(number string) bool {
	match := derivedRe.FindStringSubmatch(strings.TrimSpace(number))
	if match == nil {
		return false
	}
	_, err := time.Parse("02012006", match[1]+match[2]+match[3])
	return err == nil
}
