package reconcile

import (
	"strings"
)

// Operator replies arrive as free text (buttons and modals are flattened to
// the same canonical forms by the chat adapter):
//
//	si / sì / yes / ok      session happened, default price
//	no                      session did not happen
//	45  /  prezzo 45.50     price override, euros
//	pagato                  paid in full
//	pagato 30               partial payment of 30 euros
//
// Anything else is ignored; an unknown reply never causes a transition.
type replyKind int

const (
	replyUnknown replyKind = iota
	replyConfirm
	replyDecline
	replyOverride
	replyPayment
)

type reply struct {
	kind   replyKind
	amount int64 // minor units; for replyPayment, -1 means "in full"
}

func parseReply(text string) reply {
	s := strings.ToLower(strings.TrimSpace(text))
	switch s {
	case "si", "sì", "yes", "ok":
		return reply{kind: replyConfirm}
	case "no":
		return reply{kind: replyDecline}
	case "pagato", "pagata":
		return reply{kind: replyPayment, amount: -1}
	}

	if rest, ok := cutPrefix(s, "pagato "); ok {
		if amt, ok := parseAmount(rest); ok {
			return reply{kind: replyPayment, amount: amt}
		}
		return reply{kind: replyUnknown}
	}
	if rest, ok := cutPrefix(s, "prezzo "); ok {
		s = rest
	}
	if amt, ok := parseAmount(s); ok {
		return reply{kind: replyOverride, amount: amt}
	}
	return reply{kind: replyUnknown}
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(s, prefix)), true
	}
	return s, false
}

// parseAmount reads a euro amount ("45", "45.5", "45,50") into cents.
// At most two decimal digits are accepted.
func parseAmount(s string) (int64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(s, "€"))
	s = strings.TrimSpace(strings.TrimPrefix(s, "€"))
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if len(frac) == 0 || len(frac) > 2 {
			return 0, false
		}
	}
	if whole == "" {
		return 0, false
	}

	var cents int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, false
		}
		cents = cents*10 + int64(r-'0')
	}
	cents *= 100

	mult := int64(10)
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, false
		}
		cents += int64(r-'0') * mult
		mult /= 10
	}
	return cents, true
}
