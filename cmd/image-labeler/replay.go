package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/menta2k/image-labeler/pkg/editor"
	"github.com/menta2k/image-labeler/pkg/interaction"
	"github.com/menta2k/image-labeler/pkg/types"
)

// event is one line of a replay script:
//
//	resize W H
//	class NAME
//	down X Y
//	move X Y
//	up X Y
//	right X Y
//
// Blank lines and lines starting with # are ignored.
type event struct {
	line int
	kind string
	x, y float64
	name string
}

func parseEvents(r io.Reader) ([]event, error) {
	var events []event
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		ev := event{line: n, kind: strings.ToLower(fields[0])}

		switch ev.kind {
		case "class":
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: class needs a name", n)
			}
			ev.name = strings.Join(fields[1:], " ")
		case "resize", "down", "move", "up", "right":
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: %s needs two numbers", n, ev.kind)
			}
			x, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			y, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			ev.x, ev.y = x, y
		default:
			return nil, fmt.Errorf("line %d: unknown event %q", n, fields[0])
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// replay feeds events into ed and writes one line per model change to w. A
// drag or resize is reported once, when the pointer is released.
func replay(ed *editor.Editor, events []event, w io.Writer) error {
	var gesture interaction.Result
	for _, ev := range events {
		p := types.Pt(ev.x, ev.y)
		var r interaction.Result

		switch ev.kind {
		case "resize":
			if _, ok := ed.Resize(ev.x, ev.y); !ok {
				fmt.Fprintf(w, "%d: viewport %gx%g too small, input ignored\n", ev.line, ev.x, ev.y)
			}
			continue
		case "class":
			if err := ed.SelectClass(ev.name); err != nil {
				return fmt.Errorf("line %d: %w", ev.line, err)
			}
			continue
		case "down":
			r = ed.PointerDown(interaction.Primary, p)
		case "move":
			r = ed.PointerMove(p)
		case "up":
			r = ed.PointerUp(p)
		case "right":
			r = ed.PointerDown(interaction.Secondary, p)
		}

		switch r.Op {
		case interaction.OpNone:
		case interaction.OpMove, interaction.OpResize:
			gesture = r
		default:
			fmt.Fprintf(w, "%d: %s box %d\n", ev.line, r.Op, r.Index)
		}
		if ev.kind == "up" && gesture.Op != interaction.OpNone {
			fmt.Fprintf(w, "%d: %s box %d\n", ev.line, gesture.Op, gesture.Index)
			gesture = interaction.Result{}
		}
	}
	return nil
}
