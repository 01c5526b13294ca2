package taskmanager

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Markdown parsing is done by regex rather than a full parser, per spec.md
// §9: "acceptable, but must be deterministic and loss-preserving for the
// defined grammar." No repo in this corpus actually imports a markdown
// library for structured extraction of a private checkbox grammar like this
// one, so stdlib regexp is used directly.

const (
	sigilPending    = ' '
	sigilInProgress = '~'
	sigilCompleted  = 'x'
)

var statusToSigil = map[Status]byte{
	StatusPending:    sigilPending,
	StatusInProgress: sigilInProgress,
	StatusCompleted:  sigilCompleted,
}

var sigilToStatus = map[byte]Status{
	sigilPending:    StatusPending,
	sigilInProgress: StatusInProgress,
	sigilCompleted:  StatusCompleted,
}

// taskHeaderRe matches "## [ ] task-3: Subject text" (sigil case-sensitive).
var taskHeaderRe = regexp.MustCompile(`(?m)^## \[([ ~x])\] (task-\d+): (.*)$`)

// ToMarkdown renders the task table as the "# Tasks" document described in
// spec.md §6.3. Deleted tasks are omitted. Ordering follows ListSummaries.
func (m *Manager) ToMarkdown() string {
	summaries := m.ListSummaries()

	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("# Tasks\n\n")

	for _, s := range summaries {
		if s.Status == StatusDeleted {
			continue
		}
		t := m.tasks[s.ID]

		sigil := statusToSigil[t.Status]
		fmt.Fprintf(&b, "## [%c] %s: %s\n\n", sigil, t.ID, t.Subject)
		fmt.Fprintf(&b, "**Status:** %s\n", t.Status)
		if t.Owner != "" {
			fmt.Fprintf(&b, "**Owner:** %s\n", t.Owner)
		}
		if len(t.BlockedBy) > 0 {
			fmt.Fprintf(&b, "**Blocked by:** %s\n", strings.Join(t.BlockedBy, ", "))
		}
		if len(t.Blocks) > 0 {
			fmt.Fprintf(&b, "**Blocks:** %s\n", strings.Join(t.Blocks, ", "))
		}
		b.WriteString("\n**Description:**\n")
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}

	return b.String()
}

// FromMarkdown replaces the Manager's task table by parsing s as the §6.3
// grammar. Parsing is lossy: only subject, status, owner, blockedBy, blocks,
// and description round-trip; type/complexity/modifies/reads/metadata are
// not representable in markdown: type is set to "implement" and the others
// are reset to zero values. A pending task
// carrying an owner (stale from a crashed session) has the owner stripped.
func (m *Manager) FromMarkdown(s string) error {
	headers := taskHeaderRe.FindAllStringSubmatchIndex(s, -1)
	if len(headers) == 0 {
		if strings.TrimSpace(s) == "" || strings.TrimSpace(s) == "# Tasks" {
			m.mu.Lock()
			m.tasks = make(map[string]*Task)
			m.mu.Unlock()
			return nil
		}
		return ErrMarkdownCorrupt
	}

	tasks := make(map[string]*Task, len(headers))
	maxNum := 0

	for i, loc := range headers {
		sigil := s[loc[2]:loc[3]][0]
		id := s[loc[4]:loc[5]]
		subject := s[loc[6]:loc[7]]

		bodyStart := loc[1]
		bodyEnd := len(s)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		body := s[bodyStart:bodyEnd]

		status, ok := sigilToStatus[sigil]
		if !ok {
			return fmt.Errorf("%w: unknown status sigil %q in %s", ErrMarkdownCorrupt, string(sigil), id)
		}

		t := &Task{
			ID:      id,
			Subject: subject,
			Status:  status,
			Type:    TypeImplement,
		}

		if owner := extractField(body, "Owner"); owner != "" {
			t.Owner = owner
		}
		if blockedBy := extractField(body, "Blocked by"); blockedBy != "" {
			t.BlockedBy = splitList(blockedBy)
		}
		if blocks := extractField(body, "Blocks"); blocks != "" {
			t.Blocks = splitList(blocks)
		}
		t.Description = extractDescription(body)

		if t.Status == StatusPending && t.Owner != "" {
			t.Owner = ""
		}

		tasks[id] = t

		if n, err := strconv.Atoi(strings.TrimPrefix(id, "task-")); err == nil && n > maxNum {
			maxNum = n
		}
	}

	m.mu.Lock()
	m.tasks = tasks
	m.nextID = maxNum
	m.mu.Unlock()

	return nil
}

func extractField(body, label string) string {
	re := regexp.MustCompile(`(?m)^\*\*` + regexp.QuoteMeta(label) + `:\*\* (.*)$`)
	match := re.FindStringSubmatch(body)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

var descriptionRe = regexp.MustCompile(`(?s)\*\*Description:\*\*\n(.*)`)

func extractDescription(body string) string {
	match := descriptionRe.FindStringSubmatch(body)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
