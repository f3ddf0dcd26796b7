package actionlimit

import (
	"strconv"
	"time"

	"action-limiter/actionlimit/domain"
)

// AvailableNow é o texto fixo para um reset que já passou.
const AvailableNow = "Available now"

// FormatResetTime descreve quanto falta até reset: "{h}h {m}m" a partir de
// uma hora, senão "{m}m". Horas e minutos são truncados.
// reset nil devolve ("", false).
func FormatResetTime(reset *time.Time, now time.Time) (string, bool) {
	if reset == nil {
		return "", false
	}
	if !reset.After(now) {
		return AvailableNow, true
	}

	d := reset.Sub(now)
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours >= 1 {
		return formatInt(hours) + "h " + formatInt(minutes) + "m", true
	}
	return formatInt(minutes) + "m", true
}

// ResetIn aplica FormatResetTime ao reset de um estado.
func ResetIn(st domain.State, now time.Time) (string, bool) {
	if !st.HasReset {
		return FormatResetTime(nil, now)
	}
	reset := st.ResetTime
	return FormatResetTime(&reset, now)
}

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }
