package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/groqquest/internal/model"
)

// Files holds the built-in prompt templates.
//
//go:embed prompts/*.txt prompts/*.tmpl
var Files embed.FS

// maxInputRunes caps learner text sent to the model.
const maxInputRunes = 10000

var studentMessageRegex = regexp.MustCompile(`(?i)</?\s*student-message\b[^>]*>`)

var (
	loadOnce   sync.Once
	loadErr    error
	chatSystem string
	quizSystem *template.Template
	quizUser   *template.Template
)

// QuizData holds template data for quiz prompts.
type QuizData struct {
	Topic   string
	Length  int
	Options int
}

// Load loads prompt templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		content, err := fs.ReadFile(fsys, "prompts/chat_system.txt")
		if err != nil {
			loadErr = errors.New("failed to read prompt file prompts/chat_system.txt: " + err.Error())
			return
		}
		chatSystem = string(content)

		if quizSystem, loadErr = parseFile(fsys, "prompts/quiz_system.txt"); loadErr != nil {
			return
		}
		quizUser, loadErr = parseFile(fsys, "prompts/quiz_user.tmpl")
	})
	return loadErr
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// ChatSystem returns the tutor system prompt.
func ChatSystem() (string, error) {
	if err := Load(Files); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	return chatSystem, nil
}

// ChatUser wraps the learner's message for the tutor.
func ChatUser(message string) string {
	return "<student-message>\n" + Sanitize(message) + "\n</student-message>"
}

// BuildQuizPrompts returns the system and user prompts for a quiz on topic.
func BuildQuizPrompts(topic string) (system, user string, err error) {
	if err := Load(Files); err != nil {
		return "", "", fmt.Errorf("templates load failed: %w", err)
	}
	data := QuizData{
		Topic:   Sanitize(topic),
		Length:  model.QuizLength,
		Options: model.OptionsPerQ,
	}

	var buf bytes.Buffer
	if err := quizSystem.Execute(&buf, data); err != nil {
		return "", "", err
	}
	system = buf.String()

	buf.Reset()
	if err := quizUser.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return system, strings.TrimSpace(buf.String()), nil
}

// Sanitize strips prompt delimiter tags from learner text and caps its length.
func Sanitize(text string) string {
	text = studentMessageRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > maxInputRunes {
		runes := []rune(text)
		text = string(runes[:maxInputRunes]) + "\n\n[Message truncated due to length]"
	}
	return text
}
