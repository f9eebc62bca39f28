package format

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"OMSChat/internal/message"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

// DefaultPDFName is used when a PDF message carries no filename
const DefaultPDFName = "Invoice_Label_Sample"

// Styles holds the terminal palette
type Styles struct {
	User      lipgloss.Style
	Bot       lipgloss.Style
	Bold      lipgloss.Style
	Bullet    lipgloss.Style
	Timestamp lipgloss.Style
	Link      lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
}

// DefaultStyles returns the standard palette
func DefaultStyles() Styles {
	blue := lipgloss.Color("#1f87c2")
	dark := lipgloss.Color("#212121")
	gray := lipgloss.Color("#6b7280")

	return Styles{
		User:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		Bot:       lipgloss.NewStyle().Foreground(dark).Bold(true),
		Bold:      lipgloss.NewStyle().Bold(true),
		Bullet:    lipgloss.NewStyle().Foreground(blue),
		Timestamp: lipgloss.NewStyle().Foreground(gray),
		Link:      lipgloss.NewStyle().Foreground(blue).Underline(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626")).Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(gray).Italic(true),
	}
}

// Renderer turns messages into terminal text. PDF payloads are written to
// DownloadDir and shown as a file path.
type Renderer struct {
	DownloadDir string
	Styles      Styles
}

// NewRenderer creates a renderer writing PDFs under downloadDir
func NewRenderer(downloadDir string) *Renderer {
	return &Renderer{DownloadDir: downloadDir, Styles: DefaultStyles()}
}

// Render formats one message, including the sender header line
func (r *Renderer) Render(m message.Message) (string, error) {
	label := r.Styles.Bot.Render("Bot")
	if m.Sender == message.SenderUser {
		label = r.Styles.User.Render("You")
	}
	header := fmt.Sprintf("%s %s", label, r.Styles.Timestamp.Render(m.Timestamp.Format("15:04")))

	body, err := r.Body(m)
	if err != nil {
		return "", err
	}
	return header + "\n" + body, nil
}

// Body formats a message body without the header
func (r *Renderer) Body(m message.Message) (string, error) {
	rendered, err := Format(m.Content, m.Type)
	if err != nil {
		return "", err
	}

	if rendered.PDF != nil {
		path, err := r.savePDF(m.ID, m.Filename, rendered.PDF)
		if err != nil {
			return "", err
		}
		return "📄 " + r.Styles.Link.Render(path), nil
	}

	return r.blocks(rendered.Blocks), nil
}

func (r *Renderer) blocks(blocks []Block) string {
	lines := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch block.Kind {
		case BulletList:
			for _, item := range block.Items {
				lines = append(lines, "  "+r.Styles.Bullet.Render("•")+" "+r.spans(item))
			}
		default:
			for _, item := range block.Items {
				lines = append(lines, r.spans(item))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) spans(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		if s.Emphasized {
			b.WriteString(r.Styles.Bold.Render(s.Text))
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// savePDF writes the payload once per message; later renders of the same
// message reuse the existing file.
func (r *Renderer) savePDF(id, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(r.DownloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = unsafeFilename.ReplaceAllString(name, "_")
	if name == "" || name == "_" {
		name = DefaultPDFName
	}
	id = unsafeFilename.ReplaceAllString(id, "_")
	if id == "" {
		id = uuid.NewString()
	}
	path := filepath.Join(r.DownloadDir, fmt.Sprintf("%s-%s.pdf", name, id))

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write PDF: %w", err)
	}
	return path, nil
}
