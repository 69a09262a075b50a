package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/atinyakov/casebook/internal/client/canvas"
	"github.com/atinyakov/casebook/internal/models"
)

// Map dimensions of the canvas overview, in character cells.
const (
	mapCols = 48
	mapRows = 12
)

// RenderBoards prints a board list. Boards owned by viewer are marked.
func RenderBoards(w io.Writer, heading string, boards []models.Board, viewer *models.User) {
	fmt.Fprintf(w, "== %s (%d) ==\n", heading, len(boards))
	if len(boards) == 0 {
		fmt.Fprintln(w, "  まだ考察ボードがありません。")
		return
	}
	for _, b := range boards {
		owner := b.OwnerEmail
		if viewer != nil && b.IsOwner(viewer.ID) {
			owner = "あなた"
		}
		visibility := ""
		if b.IsPublic {
			visibility = " [公開]"
		}
		author := ""
		if b.AuthorName != "" {
			author = " / " + b.AuthorName
		}
		fmt.Fprintf(w, "  %s  %s%s%s  オーナー: %s  付箋: %d枚\n",
			b.ID, b.Title, author, visibility, owner, len(b.Notes))
	}
}

// RenderBoard prints a board's members, a coarse map of note positions on the
// canvas, and the notes themselves.
func RenderBoard(w io.Writer, b models.Board, size canvas.Size) {
	fmt.Fprintf(w, "== 事件: %s ==\n", b.Title)
	fmt.Fprintf(w, "考察メンバー: %s\n", strings.Join(memberLabels(b), ", "))
	if len(b.Notes) == 0 {
		fmt.Fprintln(w, "まだメモがありません。")
		return
	}
	renderMap(w, b.Notes, size)
	for i, n := range b.Notes {
		fmt.Fprintf(w, "  [%d] %s  (%.0f, %.0f) %+d°  %s\n", i+1, n.ID, n.X, n.Y, n.Rotation, n.Content)
	}
}

func memberLabels(b models.Board) []string {
	out := make([]string, 0, len(b.MemberEmails))
	for _, m := range b.MemberEmails {
		if m == b.OwnerEmail {
			m += " (オーナー)"
		}
		out = append(out, m)
	}
	return out
}

// renderMap draws each note's index at its scaled top-left corner. Notes that
// land on the same cell show as '*'.
func renderMap(w io.Writer, notes []models.Note, size canvas.Size) {
	grid := make([][]rune, mapRows)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(".", mapCols))
	}
	for i, n := range notes {
		col := cell(n.X, size.Width, mapCols)
		row := cell(n.Y, size.Height, mapRows)
		mark := '*'
		if label := strconv.Itoa(i + 1); len(label) == 1 && grid[row][col] == '.' {
			mark = rune(label[0])
		}
		grid[row][col] = mark
	}
	fmt.Fprintln(w, "+"+strings.Repeat("-", mapCols)+"+")
	for _, line := range grid {
		fmt.Fprintln(w, "|"+string(line)+"|")
	}
	fmt.Fprintln(w, "+"+strings.Repeat("-", mapCols)+"+")
}

func cell(v, extent float64, cells int) int {
	if extent <= 0 {
		return 0
	}
	c := int(v / extent * float64(cells))
	if c < 0 {
		return 0
	}
	if c >= cells {
		return cells - 1
	}
	return c
}

// RenderAnalysis prints an analysis result under a heading.
func RenderAnalysis(w io.Writer, summary string) {
	fmt.Fprintln(w, "== AI分析 ==")
	fmt.Fprintln(w, strings.TrimSpace(summary))
}
