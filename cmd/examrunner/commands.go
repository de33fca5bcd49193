package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mind-engage/ielts-mock/internal/client/session"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/notes"
)

const helpText = `commands:
  begin                          start the clock
  answer <question> <value...>   set an answer
  flag <question>                toggle the review flag
  section <n>                    go to a passage or section
  layout <mode>                  change the layout
  focus on|off                   toggle focus mode
  filter <name> <value>          set a question filter
  note <passage> <start> <end> [text...]
  notes                          list highlights
  unnote <id>                    delete a highlight
  state                          show saved progress
  submit                         submit the attempt
  quit                           save and leave`

var errUsage = errors.New("usage error, see help")

// noteAPI is the part of the client used for highlight housekeeping.
type noteAPI interface {
	ListNotes(ctx context.Context, attemptID string) ([]notes.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

type runner struct {
	s     *session.Session
	notes noteAPI
	out   io.Writer
}

// exec runs one command line. quit reports whether the loop should end.
func (r *runner) exec(ctx context.Context, line string) (quit bool, err error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return false, nil
	}
	args := f[1:]
	switch f[0] {
	case "help", "?":
		fmt.Fprintln(r.out, helpText)
	case "begin":
		if !r.s.Begin() {
			fmt.Fprintln(r.out, "clock already running")
		}
	case "answer", "a":
		if len(args) < 2 {
			return false, errUsage
		}
		r.s.SetAnswer(args[0], strings.Join(args[1:], " "))
	case "flag":
		if len(args) != 1 {
			return false, errUsage
		}
		r.s.ToggleFlag(args[0])
	case "section":
		n, err := intArg(args, 0)
		if err != nil {
			return false, err
		}
		r.s.SetSection(n)
	case "layout":
		if len(args) != 1 {
			return false, errUsage
		}
		r.s.SetLayoutMode(args[0])
	case "focus":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return false, errUsage
		}
		r.s.SetFocusMode(args[0] == "on")
	case "filter":
		if len(args) != 2 {
			return false, errUsage
		}
		filters := r.s.State().Filters
		if filters == nil {
			filters = map[string]string{}
		}
		filters[args[0]] = args[1]
		r.s.SetFilters(filters)
	case "note":
		if len(args) < 3 {
			return false, errUsage
		}
		start, err := intArg(args, 1)
		if err != nil {
			return false, err
		}
		end, err := intArg(args, 2)
		if err != nil {
			return false, err
		}
		n, err := r.s.AddNote(ctx, args[0], []notes.Range{{Start: start, End: end}}, "yellow", strings.Join(args[3:], " "))
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "highlight", n.ID)
	case "notes":
		list, err := r.notes.ListNotes(ctx, r.s.AttemptID())
		if err != nil {
			return false, err
		}
		for _, n := range list {
			fmt.Fprintf(r.out, "%s  %s %v %s\n", n.ID, n.PassageID, n.Ranges, n.Text)
		}
	case "unnote":
		if len(args) != 1 {
			return false, errUsage
		}
		return false, r.notes.DeleteNote(ctx, args[0])
	case "state":
		printState(r.out, r.s)
	case "submit":
		if _, err := r.s.Submit(ctx); err != nil {
			return false, err
		}
		return true, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", f[0])
	}
	return false, nil
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, errUsage
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", args[i])
	}
	return n, nil
}

func printState(w io.Writer, s *session.Session) {
	st := s.State()
	fmt.Fprintf(w, "attempt %s  section %d  time left %ds  started %v  layout %q\n",
		st.AttemptID, st.SectionIndex, st.TimeLeft, st.Started, st.LayoutMode)
	ids := make([]string, 0, len(st.Answers))
	for id := range st.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := st.Answers[id]
		mark := ""
		if e.Flagged {
			mark = " [flagged]"
		}
		fmt.Fprintf(w, "  %s = %q%s\n", id, e.Value, mark)
	}
}

func printTest(w io.Writer, t exam.Test) {
	for i, sec := range t.Sections {
		fmt.Fprintf(w, "[%d] %s\n", i, sec.Title)
		for _, q := range t.Questions {
			if q.Section != i {
				continue
			}
			fmt.Fprintf(w, "  %s (%s) %s\n", q.ID, q.Type, q.Prompt)
			for _, c := range q.Choices {
				fmt.Fprintf(w, "      %s) %s\n", c.ID, c.Label)
			}
		}
	}
}

func printResult(w io.Writer, a exam.Attempt) {
	fmt.Fprintf(w, "submitted %s: %.0f/%.0f, band %.1f\n", a.ID, a.RawScore, a.MaxScore, a.Band)
}
