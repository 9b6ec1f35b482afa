package job

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/helicase/mdq/errors"
)

// ParseWalltime parses a scheduler walltime string into a duration.
// Canonical form is HH:MM:SS; the SLURM day form D-HH:MM:SS and the
// short forms MM:SS and D-HH are also accepted.
func ParseWalltime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty walltime")
	}

	var days int64
	rest := s
	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil || d < 0 {
			return 0, errors.Newf("invalid walltime day component: %q", s)
		}
		days = d
		rest = s[i+1:]
	}

	parts := strings.Split(rest, ":")
	var h, m, sec int64
	var err error
	switch len(parts) {
	case 3: // HH:MM:SS
		h, err = parseTimePart(parts[0], err)
		m, err = parseTimePart(parts[1], err)
		sec, err = parseTimePart(parts[2], err)
	case 2: // MM:SS (or HH:MM after a day component, per sbatch)
		if days > 0 {
			h, err = parseTimePart(parts[0], err)
			m, err = parseTimePart(parts[1], err)
		} else {
			m, err = parseTimePart(parts[0], err)
			sec, err = parseTimePart(parts[1], err)
		}
	case 1: // HH after a day component, minutes otherwise
		if days > 0 {
			h, err = parseTimePart(parts[0], err)
		} else {
			m, err = parseTimePart(parts[0], err)
		}
	default:
		return 0, errors.Newf("invalid walltime: %q", s)
	}
	if err != nil {
		return 0, errors.Newf("invalid walltime: %q", s)
	}
	// Minutes are only bounded when an hour field precedes them; the bare
	// MM and MM:SS forms take any minute count, as sbatch does.
	hasHours := days > 0 || len(parts) == 3
	if (hasHours && m > 59) || sec > 59 {
		return 0, errors.Newf("invalid walltime: %q", s)
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second, nil
}

func parseTimePart(s string, prev error) (int64, error) {
	if prev != nil {
		return 0, prev
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.Newf("invalid time component: %q", s)
	}
	return v, nil
}

// FormatWalltime renders a duration in the canonical HH:MM:SS form
// (hours may exceed 24; sbatch accepts that).
func FormatWalltime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
