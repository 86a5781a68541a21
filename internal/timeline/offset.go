package timeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatOffset renders a video offset as HH:MM:SS, the store's format.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// ParseOffset parses HH:MM:SS, MM:SS or plain seconds into a video offset.
func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty offset")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	var total int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

// Seconds converts a player-reported position to a whole-second offset.
func Seconds(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(int64(f)) * time.Second
}
