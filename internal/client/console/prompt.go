// Package console is the line-oriented user interface of the client:
// prompts, rendering and user-facing messages.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atinyakov/casebook/internal/models"
)

// Prompter reads answers from in and writes questions to out.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewPrompter returns a prompter over in and out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// Ask prints label and returns the next line, trimmed. io.EOF is returned
// when the input is exhausted.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// Line returns the next raw input line without printing anything.
func (p *Prompter) Line() (string, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.in.Text(), nil
}

// Confirm asks a yes/no question. Anything but an explicit yes is a no.
func (p *Prompter) Confirm(question string) bool {
	answer, err := p.Ask(question + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "はい":
		return true
	}
	return false
}

// ConfirmDeleteBoard asks before a board and all its notes are deleted.
func (p *Prompter) ConfirmDeleteBoard(b models.Board) bool {
	return p.Confirm(fmt.Sprintf("「%s」: この事件ファイルとすべてのメモを完全に削除しますか？", b.Title))
}

// Credentials asks for an e-mail address and password.
func (p *Prompter) Credentials() (email, password string, err error) {
	if email, err = p.Ask("メールアドレス: "); err != nil {
		return "", "", err
	}
	if password, err = p.Ask("パスワード: "); err != nil {
		return "", "", err
	}
	return email, password, nil
}

// Registration asks for a display name, e-mail address and password.
func (p *Prompter) Registration() (displayName, email, password string, err error) {
	if displayName, err = p.Ask("捜査官名 (表示名): "); err != nil {
		return "", "", "", err
	}
	email, password, err = p.Credentials()
	return displayName, email, password, err
}

// NoteContent asks for the text of a new note. The text may be typed in or
// loaded from a file.
func (p *Prompter) NoteContent() (string, error) {
	path, err := p.Ask("ファイルから読み込む場合はパスを入力 (空欄で手入力): ")
	if err != nil {
		return "", err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file %q: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return p.Ask("新しい手がかり...: ")
}
