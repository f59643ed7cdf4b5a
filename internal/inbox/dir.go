package inbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DirInbox reads messages from a local drop directory, one file per message.
// File format: "From:" and "Subject:" header lines, a blank line, then the
// body. Useful for development and for feeding captured emails through the
// pipeline without touching a real mailbox.
type DirInbox struct {
	Root   string
	logger *zap.Logger
}

func NewDirInbox(root string, logger *zap.Logger) *DirInbox {
	return &DirInbox{Root: root, logger: logger}
}

// Search reads every message file under the root. The from: query term is
// honored as a sender filter; Gmail date terms have no meaning on a local
// directory and are ignored.
func (d *DirInbox) Search(ctx context.Context, query string, maxResults int64) ([]Message, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, err
	}
	fromFilter := queryFrom(query)

	var msgs []Message
	for _, e := range entries {
		if e.IsDir() || !allowedMessageFile(e.Name()) {
			continue
		}
		if int64(len(msgs)) >= maxResults {
			break
		}
		path := filepath.Join(d.Root, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			d.logger.Warn("inbox.dir_read_failed", zap.String("path", path), zap.Error(err))
			continue
		}
		m := parseMessageFile(e.Name(), string(data))
		if fromFilter != "" && !strings.Contains(strings.ToLower(m.Sender), fromFilter) {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func allowedMessageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".eml", ".txt":
		return true
	}
	return false
}

func queryFrom(query string) string {
	for _, tok := range strings.Fields(query) {
		if rest, ok := strings.CutPrefix(strings.ToLower(tok), "from:"); ok {
			return rest
		}
	}
	return ""
}

func parseMessageFile(name, content string) Message {
	m := Message{ID: name}
	head, body, found := strings.Cut(content, "\n\n")
	if !found {
		m.Body = content
		return m
	}
	for _, line := range strings.Split(head, "\n") {
		if v, ok := strings.CutPrefix(line, "From:"); ok {
			m.Sender = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "Subject:"); ok {
			m.Subject = strings.TrimSpace(v)
		}
	}
	if m.Sender == "" && m.Subject == "" {
		// No headers at all; treat the whole file as body.
		m.Body = content
		return m
	}
	m.Body = body
	return m
}
