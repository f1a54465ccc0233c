package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// defaultSchedules are used when the config's jobs section is silent.
var defaultSchedules = map[string]string{
	"canvas": "@every 30m",
	"news":   "@every 15m",
	"brief":  "08:00",
	"weekly": "0 17 * * 0",
	"gc":     "03:30",
}

// parseSchedule normalizes the accepted schedule forms to a cron spec:
//
//   - full cron spec or descriptor ("*/15 * * * *", "@every 30m", "@hourly")
//   - bare duration ("15m"), shorthand for @every
//   - daily time of day ("08:00")
func parseSchedule(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("empty schedule")
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < time.Minute {
			return "", fmt.Errorf("schedule %q: interval below 1m", spec)
		}
		return "@every " + d.String(), nil
	}

	if h, m, ok := parseHHMM(spec); ok {
		return fmt.Sprintf("%d %d * * *", m, h), nil
	}

	if _, err := cronParser.Parse(spec); err != nil {
		return "", fmt.Errorf("schedule %q: %w", spec, err)
	}
	return spec, nil
}

func parseHHMM(s string) (hour, minute int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
