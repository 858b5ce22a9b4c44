package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rickgao/subscription-dashboard/internal/dashboard"
	"github.com/rickgao/subscription-dashboard/internal/model"
)

const helpText = `commands:
  search <text>        filter by user name or email (empty clears)
  filter <status|all>  active, trial, cancelled, expired or all
  next | prev          page through results
  new                  open the editor for a new subscription
  edit <id>            open the editor for a subscription on this page
  cancel               close the editor
  save k=v ...         name= email= plan= status= [id=]; merges into the open editor
  delete <id>          delete after confirmation
  reload               refetch plans, the list and analytics
  status               print the current dashboard state
  quit                 exit
`

// commands is the part of the controller the shell drives.
type commands interface {
	Search(text string) error
	FilterStatus(status string) error
	NextPage() error
	PrevPage() error
	NewSubscription() error
	Edit(id int) error
	CloseEditor() error
	CreateOrUpdate(ctx context.Context, p model.SubscriptionPayload) error
	Delete(ctx context.Context, id int) error
	Reload() error
	Overview(ctx context.Context) (dashboard.Overview, error)
}

// shell reads line commands and doubles as the delete Confirmer. Both run on
// the goroutine executing run, so they share the line channel safely.
type shell struct {
	ctl    commands
	lines  <-chan string
	out    io.Writer
	logger *slog.Logger

	ctx context.Context
}

func newShell(lines <-chan string, out io.Writer, logger *slog.Logger) *shell {
	if logger == nil {
		logger = slog.Default()
	}
	return &shell{
		lines:  lines,
		out:    out,
		logger: logger.With("component", "shell"),
		ctx:    context.Background(),
	}
}

// readLines scans r on its own goroutine. The channel closes at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// run executes commands until quit, ctx cancellation, or forever after EOF
// (so a detached process keeps running until signalled).
func (s *shell) run(ctx context.Context) error {
	s.ctx = ctx
	lines := s.lines
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				s.logger.Info("stdin closed, commands disabled")
				lines = nil
				continue
			}
			quit, err := s.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Confirm prompts on out and reads one answer line.
func (s *shell) Confirm(prompt string) bool {
	fmt.Fprintf(s.out, "%s [y/N] ", prompt)
	select {
	case <-s.ctx.Done():
		return false
	case answer, ok := <-s.lines:
		if !ok {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "search":
		return false, s.ctl.Search(arg)
	case "filter":
		if strings.EqualFold(arg, "all") {
			arg = ""
		}
		return false, s.ctl.FilterStatus(arg)
	case "next":
		return false, s.ctl.NextPage()
	case "prev":
		return false, s.ctl.PrevPage()
	case "new":
		return false, s.ctl.NewSubscription()
	case "edit":
		id, err := parseID(arg)
		if err != nil {
			return false, err
		}
		return false, s.ctl.Edit(id)
	case "cancel":
		return false, s.ctl.CloseEditor()
	case "save":
		return false, s.save(ctx, arg)
	case "delete":
		id, err := parseID(arg)
		if err != nil {
			return false, err
		}
		err = s.ctl.Delete(ctx, id)
		if errors.Is(err, dashboard.ErrNotConfirmed) {
			fmt.Fprintln(s.out, "delete cancelled")
			return false, nil
		}
		return false, err
	case "reload":
		return false, s.ctl.Reload()
	case "status":
		o, err := s.ctl.Overview(ctx)
		if err != nil {
			return false, err
		}
		printOverview(s.out, o)
		return false, nil
	case "help", "?":
		fmt.Fprint(s.out, helpText)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (try help)", name)
	}
}

func (s *shell) save(ctx context.Context, arg string) error {
	o, err := s.ctl.Overview(ctx)
	if err != nil {
		return err
	}
	var base model.SubscriptionPayload
	if o.EditorOpen {
		base = o.Editor
	}
	p, err := parseAssignments(base, arg)
	if err != nil {
		return err
	}
	return s.ctl.CreateOrUpdate(ctx, p)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// parseAssignments applies key=value pairs to p. Values may be double-quoted
// to include spaces.
func parseAssignments(p model.SubscriptionPayload, s string) (model.SubscriptionPayload, error) {
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return p, nil
		}

		key, rest, ok := strings.Cut(s, "=")
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return p, fmt.Errorf("expected key=value, got %q", s)
		}

		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				return p, fmt.Errorf("unterminated quote in %s", key)
			}
			value, s = rest[1:end+1], rest[end+2:]
		} else {
			value, s, _ = strings.Cut(rest, " ")
		}

		switch strings.ToLower(key) {
		case "name":
			p.UserName = value
		case "email":
			p.UserEmail = value
		case "plan":
			n, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("plan: invalid id %q", value)
			}
			p.PlanID = n
		case "status":
			p.Status = model.Status(strings.ToLower(value))
		case "id":
			n, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("id: invalid id %q", value)
			}
			p.ID = n
		default:
			return p, fmt.Errorf("unknown field %q", key)
		}
	}
}

func printOverview(w io.Writer, o dashboard.Overview) {
	fmt.Fprintf(w, "connection: %s (attempts=%d reconnects=%d messages=%d)\n",
		o.Connection, o.ConnStats.Attempts, o.ConnStats.Reconnects, o.ConnStats.Messages)

	if o.PageLoaded {
		start, end := o.Pagination.Range()
		fmt.Fprintf(w, "list: page %d/%d, showing %d-%d of %d",
			o.Pagination.Page, o.Pagination.MaxPage(), start, end, o.Pagination.Total)
	} else {
		fmt.Fprint(w, "list: loading")
	}
	if o.Query.Status != "" {
		fmt.Fprintf(w, " status=%s", o.Query.Status)
	}
	if o.Query.Search != "" {
		fmt.Fprintf(w, " search=%q", o.Query.Search)
	}
	fmt.Fprintln(w)

	if o.Analytics.Empty() {
		fmt.Fprintln(w, "analytics: none")
	} else {
		a := o.Analytics.Snapshot
		fmt.Fprintf(w, "analytics: total=%d active=%d trial=%d cancelled=%d expired=%d mrr=%.2f source=%s\n",
			a.TotalSubscriptions, a.ActiveSubscriptions, a.TrialSubscriptions,
			a.CancelledSubscriptions, o.Analytics.Expired(), a.MonthlyRevenue, o.Analytics.Source)
	}

	if o.EditorOpen {
		e := o.Editor
		fmt.Fprintf(w, "editor: id=%d name=%q email=%q plan=%d status=%s\n",
			e.ID, e.UserName, e.UserEmail, e.PlanID, e.Status)
	}
}
