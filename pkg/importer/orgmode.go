package importer

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
)

var (
	orgHeadingRegex  = regexp.MustCompile(`^\*+\s+(TODO|DONE|DOING)\s*(?:\[#([A-Z])\])?\s*(.*?)(?:\s+:((?:[\w@]+:)+))?\s*$`)
	orgDeadlineRegex = regexp.MustCompile(`DEADLINE:\s+<(\d{4}-\d{2}-\d{2})(?:\s+[A-Za-z]{2,3})?(?:\s+(\d{2}:\d{2}))?[^>]*>`)
)

// ParseOrg reads TODO, DOING and DONE headings from an Org-mode document.
// Body lines under a heading become its description; a DEADLINE sets the due
// date in loc.
func ParseOrg(r io.Reader, loc *time.Location) ([]model.TaskInsert, error) {
	scanner := bufio.NewScanner(r)
	var (
		tasks   []model.TaskInsert
		current *model.TaskInsert
		body    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		if len(body) > 0 {
			current.Description = model.String(strings.Join(body, "\n"))
		}
		tasks = append(tasks, *current)
		current = nil
		body = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := orgHeadingRegex.FindStringSubmatch(line); m != nil {
			flush()
			title := strings.TrimSpace(m[3])
			if title == "" {
				continue
			}
			current = &model.TaskInsert{
				Title:    title,
				Status:   orgStatus(m[1]),
				Priority: orgPriority(m[2]),
				Tags:     []string{},
			}
			if m[4] != "" {
				current.Tags = strings.Split(strings.Trim(m[4], ":"), ":")
			}
			continue
		}
		if strings.HasPrefix(line, "*") {
			flush()
			continue
		}
		if current == nil {
			continue
		}
		if m := orgDeadlineRegex.FindStringSubmatch(line); m != nil {
			layout, value := "2006-01-02", m[1]
			if m[2] != "" {
				layout, value = "2006-01-02 15:04", m[1]+" "+m[2]
			}
			if due, err := time.ParseInLocation(layout, value, loc); err == nil {
				current.DueDate = &due
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "SCHEDULED:") || strings.HasPrefix(line, "CLOSED:") {
			continue
		}
		body = append(body, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return tasks, nil
}

func orgStatus(keyword string) model.Status {
	switch keyword {
	case "DONE":
		return model.StatusCompleted
	case "DOING":
		return model.StatusInProgress
	}
	return model.StatusTodo
}

func orgPriority(cookie string) model.Priority {
	switch cookie {
	case "A":
		return model.PriorityUrgent
	case "B":
		return model.PriorityHigh
	case "C":
		return model.PriorityMedium
	case "D":
		return model.PriorityLow
	}
	return model.PriorityMedium
}
