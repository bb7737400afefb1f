// ABOUTME: Export functionality for session transcripts
// ABOUTME: Supports YAML and Markdown export formats
package sqlite

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/ragchat/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version    string          `yaml:"version" json:"version"`
	ExportedAt string          `yaml:"exported_at" json:"exported_at"`
	Tool       string          `yaml:"tool" json:"tool"`
	Sessions   []ExportSession `yaml:"sessions" json:"sessions"`
	Builds     []ExportBuild   `yaml:"index_builds,omitempty" json:"index_builds,omitempty"`
}

// ExportSession represents a session transcript for export
type ExportSession struct {
	SessionID string       `yaml:"session_id" json:"session_id"`
	Title     string       `yaml:"title" json:"title"`
	CreatedAt string       `yaml:"created_at" json:"created_at"`
	UpdatedAt string       `yaml:"updated_at" json:"updated_at"`
	Turns     []ExportTurn `yaml:"turns" json:"turns"`
}

// ExportTurn represents a turn for export
type ExportTurn struct {
	TurnID     string                `yaml:"turn_id" json:"turn_id"`
	Role       string                `yaml:"role" json:"role"`
	Text       string                `yaml:"text" json:"text"`
	Attachment *models.AttachmentRef `yaml:"attachment,omitempty" json:"attachment,omitempty"`
	Timestamp  string                `yaml:"timestamp" json:"timestamp"`
}

// ExportBuild represents an index build for export
type ExportBuild struct {
	BuildID        string `yaml:"build_id" json:"build_id"`
	IndexDir       string `yaml:"index_dir" json:"index_dir"`
	Chunks         int    `yaml:"chunks" json:"chunks"`
	EmbeddingModel string `yaml:"embedding_model,omitempty" json:"embedding_model,omitempty"`
	CreatedAt      string `yaml:"created_at" json:"created_at"`
}

// ExportSessions collects the named sessions, or every session when no ids
// are given. Unknown ids are an error.
func (s *Storage) ExportSessions(sessionIDs ...string) (*ExportData, error) {
	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "ragchat",
		Sessions:   []ExportSession{},
	}

	ids := sessionIDs
	if len(ids) == 0 {
		summaries, err := s.ListSessions()
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		for _, sum := range summaries {
			ids = append(ids, sum.SessionID)
		}
	}

	for _, id := range ids {
		session, err := s.GetSession(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get session %s: %w", id, err)
		}
		if session == nil {
			return nil, fmt.Errorf("session %s not found", id)
		}

		es := ExportSession{
			SessionID: session.SessionID,
			Title:     session.Title(),
			CreatedAt: session.CreatedAt.Format(time.RFC3339),
			UpdatedAt: session.UpdatedAt.Format(time.RFC3339),
			Turns:     make([]ExportTurn, 0, len(session.Turns)),
		}
		for _, turn := range session.Turns {
			es.Turns = append(es.Turns, ExportTurn{
				TurnID:     turn.TurnID,
				Role:       string(turn.Role),
				Text:       turn.Text,
				Attachment: turn.Attachment,
				Timestamp:  turn.Timestamp.Format(time.RFC3339),
			})
		}
		data.Sessions = append(data.Sessions, es)
	}

	// Full exports also carry the build history
	if len(sessionIDs) == 0 {
		builds, err := s.ListBuilds(0)
		if err != nil {
			return nil, fmt.Errorf("failed to list builds: %w", err)
		}
		for _, b := range builds {
			data.Builds = append(data.Builds, ExportBuild{
				BuildID:        b.BuildID,
				IndexDir:       b.IndexDir,
				Chunks:         b.Chunks,
				EmbeddingModel: b.EmbeddingModel,
				CreatedAt:      b.CreatedAt.Format(time.RFC3339),
			})
		}
	}

	return data, nil
}

// WriteYAML encodes export data as YAML
func WriteYAML(w io.Writer, data *ExportData) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteMarkdown renders export data as a Markdown transcript
func WriteMarkdown(w io.Writer, data *ExportData) error {
	// Write header
	_, _ = fmt.Fprintf(w, "# ragchat Export - %s\n\n", time.Now().Format("2006-01-02"))
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", data.ExportedAt)

	// Write conversations
	if len(data.Sessions) > 0 {
		_, _ = fmt.Fprintln(w, "## Conversations")
		_, _ = fmt.Fprintln(w)
		for _, session := range data.Sessions {
			title := session.Title
			if title == "" {
				title = session.SessionID
			}
			_, _ = fmt.Fprintf(w, "### %s\n\n", title)
			_, _ = fmt.Fprintf(w, "*Session: %s, updated %s*\n\n", session.SessionID, session.UpdatedAt)
			for _, turn := range session.Turns {
				switch models.Role(turn.Role) {
				case models.RoleHuman:
					_, _ = fmt.Fprintf(w, "**User:** %s\n\n", turn.Text)
					if a := turn.Attachment; a != nil {
						_, _ = fmt.Fprintf(w, "*Attachment: %s*\n\n", formatAttachment(a))
					}
				default:
					_, _ = fmt.Fprintf(w, "**AI:** %s\n\n", turn.Text)
				}
			}
			_, _ = fmt.Fprintln(w, "---")
			_, _ = fmt.Fprintln(w)
		}
	}

	// Write builds
	if len(data.Builds) > 0 {
		_, _ = fmt.Fprintln(w, "## Index Builds")
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "| Build | Chunks | Model | Created |")
		_, _ = fmt.Fprintln(w, "|-------|--------|-------|---------|")
		for _, b := range data.Builds {
			_, _ = fmt.Fprintf(w, "| %s | %d | %s | %s |\n", b.BuildID, b.Chunks, b.EmbeddingModel, b.CreatedAt)
		}
		_, _ = fmt.Fprintln(w)
	}

	return nil
}

// ExportToYAML exports sessions to a YAML file
func (s *Storage) ExportToYAML(outputPath string, sessionIDs ...string) error {
	return s.exportToFile(outputPath, WriteYAML, sessionIDs)
}

// ExportToMarkdown exports sessions to a Markdown file
func (s *Storage) ExportToMarkdown(outputPath string, sessionIDs ...string) error {
	return s.exportToFile(outputPath, WriteMarkdown, sessionIDs)
}

func (s *Storage) exportToFile(outputPath string, write func(io.Writer, *ExportData) error, sessionIDs []string) error {
	data, err := s.ExportSessions(sessionIDs...)
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return write(file, data)
}

func formatAttachment(a *models.AttachmentRef) string {
	parts := []string{string(a.Kind)}
	if a.Filename != "" {
		parts = append(parts, a.Filename)
	}
	parts = append(parts, fmt.Sprintf("%d bytes", a.Size))
	if len(a.PayloadRef) >= 12 {
		parts = append(parts, "sha256 "+a.PayloadRef[:12])
	}
	return strings.Join(parts, ", ")
}
