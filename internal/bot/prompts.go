package bot

import (
	"fmt"

	"github.com/lorenzodm/tutorflow/internal/reconcile"
)

func promptText(c reconcile.Candidate) string {
	return fmt.Sprintf(
		"🎓 **Lezione terminata!**\n\n👤 **Studente:** %s\n⏰ **Orario:** %s\n⏳ **Durata:** %s\n\nHai effettivamente svolto questa lezione?",
		c.ClientID,
		c.ScheduledStart.Format("02/01 15:04"),
		formatDuration(c.DurationMinutes),
	)
}

func priceRequestText(c reconcile.Candidate) string {
	return fmt.Sprintf(
		"💶 Nessuna tariffa registrata per **%s**. Indica il prezzo della lezione del %s (%s).",
		c.ClientID,
		c.ScheduledStart.Format("02/01"),
		formatDuration(c.DurationMinutes),
	)
}

func reminderText(c reconcile.Candidate) string {
	return fmt.Sprintf(
		"🔔 Promemoria: la lezione di **%s** del %s (%s) è ancora da confermare.",
		c.ClientID,
		c.ScheduledStart.Format("02/01 15:04"),
		formatDuration(c.DurationMinutes),
	)
}

// formatDuration renders minutes as "1h 30min", "2h" or "45min".
func formatDuration(minutes int) string {
	hours := minutes / 60
	rest := minutes % 60
	switch {
	case hours > 0 && rest > 0:
		return fmt.Sprintf("%dh %dmin", hours, rest)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dmin", rest)
	}
}
