package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/atinyakov/casebook/internal/client/canvas"
	"github.com/atinyakov/casebook/internal/client/console"
	"github.com/atinyakov/casebook/internal/client/notebook"
	"github.com/atinyakov/casebook/internal/models"
)

const helpText = `Available commands:
  register | login | logout | whoami
  boards                      list your boards
  new                         create a board
  delete <board>              delete a board you own
  public | search <title>     browse public boards
  open <board> | close        open or close a board
  notes                       show the open board
  add | rm <note>             add or remove a note
  drag <note> <x> <y>         drag a note to a position
  move <note> <dx> <dy>       drag a note by an offset
  canvas [<width> <height>]   show or set the canvas size
  share                       show members and visibility
  invite <email> | uninvite <email>
  visibility public|private
  analyze                     ask the AI to summarize the notes
  exit`

// shell is the interactive command loop around a notebook controller.
type shell struct {
	ctrl     *notebook.Controller
	prompter *console.Prompter
	out      io.Writer
	drag     *canvas.DragController
}

func newShell(ctrl *notebook.Controller, prompter *console.Prompter, out io.Writer) *shell {
	return &shell{
		ctrl:     ctrl,
		prompter: prompter,
		out:      out,
		drag:     canvas.NewDragController(ctrl.Canvas(), ctrl.UpdateNotePosition),
	}
}

// run reads commands until exit, end of input or ctx is done.
func (s *shell) run(ctx context.Context) {
	for ctx.Err() == nil {
		fmt.Fprint(s.out, "casebook> ")
		line, err := s.prompter.Line()
		if err != nil {
			fmt.Fprintln(s.out)
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if quit := s.exec(ctx, args); quit {
			return
		}
	}
}

// exec runs one command. It returns true when the shell should exit.
func (s *shell) exec(ctx context.Context, args []string) bool {
	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "exit", "quit":
		fmt.Fprintln(s.out, "Bye")
		return true
	case "register":
		err = s.register(ctx)
	case "login":
		err = s.login(ctx)
	case "logout":
		if err = s.ctrl.SignOut(ctx); err == nil {
			fmt.Fprintln(s.out, "ログアウトしました。")
		}
	case "whoami":
		s.whoami()
	case "boards":
		err = s.boards(ctx)
	case "new":
		err = s.newBoard(ctx)
	case "delete":
		if err = need(rest, 1, "delete <board>"); err == nil {
			if err = s.ctrl.DeleteBoard(ctx, rest[0]); err == nil {
				fmt.Fprintln(s.out, "削除しました。")
			}
		}
	case "public", "search":
		err = s.search(ctx, strings.Join(rest, " "))
	case "open":
		if err = need(rest, 1, "open <board>"); err == nil {
			if err = s.ctrl.OpenBoard(ctx, rest[0]); err == nil {
				s.notes()
			}
		}
	case "close":
		s.ctrl.CloseBoard()
	case "notes":
		s.notes()
	case "add":
		err = s.addNote(ctx)
	case "rm":
		if err = need(rest, 1, "rm <note>"); err == nil {
			var n models.Note
			if n, err = s.note(rest[0]); err == nil {
				err = s.ctrl.DeleteNote(ctx, n.ID)
			}
		}
	case "drag", "move":
		if err = need(rest, 3, cmd+" <note> <x> <y>"); err == nil {
			err = s.dragNote(ctx, rest[0], rest[1], rest[2], cmd == "move")
		}
	case "canvas":
		err = s.resizeCanvas(rest)
	case "share":
		s.share()
	case "invite":
		if err = need(rest, 1, "invite <email>"); err == nil {
			err = s.withActive(func(id string) error { return s.ctrl.InviteMember(ctx, id, rest[0]) })
		}
	case "uninvite":
		if err = need(rest, 1, "uninvite <email>"); err == nil {
			err = s.withActive(func(id string) error { return s.ctrl.RemoveMember(ctx, id, rest[0]) })
		}
	case "visibility":
		if err = need(rest, 1, "visibility public|private"); err == nil {
			err = s.visibility(ctx, rest[0])
		}
	case "analyze":
		var summary string
		if summary, err = s.ctrl.Analyze(ctx); err == nil {
			console.RenderAnalysis(s.out, summary)
		}
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
	}

	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(s.out, usage.Error())
		} else {
			fmt.Fprintln(s.out, console.Message(err))
		}
	}
	return false
}

type usageError string

func (u usageError) Error() string { return "Usage: " + string(u) }

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return usageError(usage)
	}
	return nil
}

func (s *shell) register(ctx context.Context) error {
	name, email, password, err := s.prompter.Registration()
	if err != nil {
		return err
	}
	if err := s.ctrl.Register(ctx, name, email, password); err != nil {
		return err
	}
	s.whoami()
	return nil
}

func (s *shell) login(ctx context.Context) error {
	email, password, err := s.prompter.Credentials()
	if err != nil {
		return err
	}
	if err := s.ctrl.SignInWithCredentials(ctx, email, password); err != nil {
		return err
	}
	s.whoami()
	return nil
}

func (s *shell) whoami() {
	p := s.ctrl.Principal()
	if p == nil {
		fmt.Fprintln(s.out, "ログインしていません。")
		return
	}
	fmt.Fprintf(s.out, "%s <%s>\n", p.DisplayName, p.Email)
}

func (s *shell) boards(ctx context.Context) error {
	p := s.ctrl.Principal()
	if p == nil {
		return notebook.ErrNotSignedIn
	}
	if err := s.ctrl.LoadMyBoards(ctx, *p); err != nil {
		return err
	}
	console.RenderBoards(s.out, "あなたの考察ボード", s.ctrl.MyBoards(), p)
	return nil
}

func (s *shell) newBoard(ctx context.Context) error {
	title, err := s.prompter.Ask("事件名: ")
	if err != nil {
		return err
	}
	author, err := s.prompter.Ask("作者名 (任意): ")
	if err != nil {
		return err
	}
	isPublic := s.prompter.Confirm("公開しますか？")
	b, err := s.ctrl.CreateBoard(ctx, title, author, isPublic)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "作成しました: %s\n", b.ID)
	return nil
}

func (s *shell) search(ctx context.Context, term string) error {
	if err := s.ctrl.SearchPublicBoards(ctx, term); err != nil {
		return err
	}
	console.RenderBoards(s.out, "公開ボード", s.ctrl.PublicBoards(), s.ctrl.Principal())
	return nil
}

func (s *shell) notes() {
	b := s.ctrl.ActiveBoard()
	if b == nil {
		fmt.Fprintln(s.out, console.Message(notebook.ErrNoActiveBoard))
		return
	}
	console.RenderBoard(s.out, *b, s.ctrl.Canvas())
	if a := s.ctrl.Analysis(); a != "" {
		console.RenderAnalysis(s.out, a)
	}
}

func (s *shell) addNote(ctx context.Context) error {
	if s.ctrl.ActiveBoard() == nil {
		return notebook.ErrNoActiveBoard
	}
	content, err := s.prompter.NoteContent()
	if err != nil {
		return err
	}
	n, err := s.ctrl.AddNote(ctx, content)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "付箋を追加しました: %s (%.0f, %.0f)\n", n.ID, n.X, n.Y)
	return nil
}

// note finds a note on the active board by id or by its 1-based position in
// the notes listing.
func (s *shell) note(ref string) (models.Note, error) {
	b := s.ctrl.ActiveBoard()
	if b == nil {
		return models.Note{}, notebook.ErrNoActiveBoard
	}
	for _, n := range b.Notes {
		if n.ID == ref {
			return n, nil
		}
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 1 && i <= len(b.Notes) {
		return b.Notes[i-1], nil
	}
	return models.Note{}, fmt.Errorf("note %s: %w", ref, models.ErrNotFound)
}

// dragNote replays a pointer drag: press on the note's corner, move to the
// target and release. relative treats x and y as offsets.
func (s *shell) dragNote(ctx context.Context, ref, xs, ys string, relative bool) error {
	n, err := s.note(ref)
	if err != nil {
		return err
	}
	x, errX := strconv.ParseFloat(xs, 64)
	y, errY := strconv.ParseFloat(ys, 64)
	if errX != nil || errY != nil {
		return fmt.Errorf("position: %w", models.ErrInvalidInput)
	}
	if relative {
		x, y = n.X+x, n.Y+y
	}

	s.drag.Resize(s.ctrl.Canvas())
	if !s.drag.PointerDown(n.ID, n.X, n.Y, n.X, n.Y) {
		return fmt.Errorf("drag in progress: %w", models.ErrInvalidInput)
	}
	if _, _, ok := s.drag.PointerMove(x, y); !ok {
		return fmt.Errorf("drag: %w", models.ErrInvalidInput)
	}
	fx, fy := s.drag.Position()
	if err := s.drag.PointerUp(ctx); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "移動しました: (%.0f, %.0f)\n", fx, fy)
	return nil
}

// resizeCanvas shows the canvas size, or sets it when a width and height
// are given. Later drags and new notes are clamped to the new size.
func (s *shell) resizeCanvas(args []string) error {
	if len(args) > 0 {
		if err := need(args, 2, "canvas <width> <height>"); err != nil {
			return err
		}
		w, errW := strconv.ParseFloat(args[0], 64)
		h, errH := strconv.ParseFloat(args[1], 64)
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			return usageError("canvas <width> <height>")
		}
		s.ctrl.SetCanvas(canvas.Size{Width: w, Height: h})
		s.drag.Resize(s.ctrl.Canvas())
	}
	size := s.ctrl.Canvas()
	fmt.Fprintf(s.out, "キャンバス: %.0f x %.0f\n", size.Width, size.Height)
	return nil
}

func (s *shell) withActive(fn func(boardID string) error) error {
	b := s.ctrl.ActiveBoard()
	if b == nil {
		return notebook.ErrNoActiveBoard
	}
	if err := fn(b.ID); err != nil {
		return err
	}
	s.share()
	return nil
}

func (s *shell) share() {
	b := s.ctrl.ActiveBoard()
	if b == nil {
		fmt.Fprintln(s.out, console.Message(notebook.ErrNoActiveBoard))
		return
	}
	state := "非公開"
	if b.IsPublic {
		state = "公開"
	}
	fmt.Fprintf(s.out, "「%s」 %s\n", b.Title, state)
	for _, m := range b.MemberEmails {
		label := m
		if m == b.OwnerEmail {
			label += " (オーナー)"
		}
		fmt.Fprintf(s.out, "  - %s\n", label)
	}
}

func (s *shell) visibility(ctx context.Context, mode string) error {
	var isPublic bool
	switch mode {
	case "public":
		isPublic = true
	case "private":
	default:
		return usageError("visibility public|private")
	}
	return s.withActive(func(id string) error { return s.ctrl.UpdateVisibility(ctx, id, isPublic) })
}
