package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidateSegment checks that s can be used as a single path segment
func ValidateSegment(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("empty identifier")
	case s == "." || s == "..":
		return fmt.Errorf("invalid identifier %q", s)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("identifier %q contains a path separator", s)
	case strings.ContainsRune(s, 0):
		return fmt.Errorf("identifier %q contains a NUL byte", s)
	}

	return nil
}

// ParseIDs parses catalog IDs given on the command line.
// Each argument may itself be a comma separated list.
func ParseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))

	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}

			id, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q: %w", field, err)
			}

			ids = append(ids, id)
		}
	}

	return ids, nil
}

// TicketID returns a unique id used to name per-request build directories
func TicketID() string {
	return strconv.FormatInt(time.Now().Unix(), 10) + strings.ReplaceAll(uuid.NewString(), "-", "")
}
