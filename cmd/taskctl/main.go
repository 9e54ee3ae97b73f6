package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v3"

	"trello-project/backend/tasks-service/kanban"
	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/middleware"
	"trello-project/backend/tasks-service/models"
	"trello-project/backend/utils"
)

func main() {
	_ = godotenv.Load()

	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "taskctl",
		Usage:  "Drive the task board from a terminal",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "Tasks service base URL", Sources: cli.EnvVars("TASKS_API_URL"), Value: "http://localhost:8002"},
			&cli.StringFlag{Name: "token", Usage: "Bearer token", Sources: cli.EnvVars("TASKS_TOKEN")},
			&cli.StringFlag{Name: "columns", Usage: "YAML file with extra column labels"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log requests to stderr"},
		},
		Commands: []*cli.Command{
			moveCmd(),
			transitionCmd(),
			toggleCmd(),
			dashboardCmd(),
			columnsCmd(),
		},
	}
}

func moveCmd() *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Move a card between two board columns",
		ArgsUsage: "<task-id> <from-column> <to-column>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 3 {
				return fmt.Errorf("move needs a task id, a source and a target column")
			}
			return withEngine(ctx, cmd, func(e *kanban.Engine) error {
				return e.OnCardMoved(args.Get(0), args.Get(1), args.Get(2))
			})
		},
	}
}

func transitionCmd() *cli.Command {
	return &cli.Command{
		Name:      "transition",
		Usage:     "Change a task's status",
		ArgsUsage: "<task-id> <status>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason", Usage: "Reason, required when returning a task"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return fmt.Errorf("transition needs a task id and a status")
			}
			to := models.TaskStatus(args.Get(1))
			if !to.Valid() {
				return fmt.Errorf("unknown status %q", to)
			}
			return withEngine(ctx, cmd, func(e *kanban.Engine) error {
				return e.Transition(args.Get(0), to, cmd.String("reason"))
			})
		},
	}
}

func toggleCmd() *cli.Command {
	return &cli.Command{
		Name:      "toggle",
		Usage:     "Tick or untick a checklist item",
		ArgsUsage: "<task-id> <item-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return fmt.Errorf("toggle needs a task id and an item id")
			}
			return withEngine(ctx, cmd, func(e *kanban.Engine) error {
				return e.ToggleChecklistItem(args.Get(0), args.Get(1))
			})
		},
	}
}

func dashboardCmd() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Show counters and the overdue and upcoming lists",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Usage: "Upcoming window in days"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			view, err := client.Dashboard(ctx, int(cmd.Int("days")))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Total\t%d\n", view.Counters.Total)
			fmt.Fprintf(w, "Pending approvals\t%d\n", view.Counters.PendingApprovals)
			fmt.Fprintf(w, "Overdue\t%d\n", view.Counters.Overdue)
			fmt.Fprintf(w, "Upcoming\t%d\n", view.Counters.Upcoming)
			fmt.Fprintf(w, "Completed this period\t%d\n", view.Counters.CompletedThisPeriod)
			for _, t := range view.Overdue {
				fmt.Fprintf(w, "overdue\t%s\t%s\t%s\n", t.ID, t.Title, t.Deadline.Format("2006-01-02"))
			}
			for _, t := range view.Upcoming {
				fmt.Fprintf(w, "upcoming\t%s\t%s\t%s\n", t.ID, t.Title, t.Deadline.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func columnsCmd() *cli.Command {
	return &cli.Command{
		Name:  "columns",
		Usage: "List the column labels each status answers to",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cols, err := loadColumns(cmd)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
			for _, status := range models.Statuses {
				labels := cols.Labels(status)
				sort.Strings(labels)
				fmt.Fprintf(w, "%s\t%s\n", status, strings.Join(labels, ", "))
			}
			return w.Flush()
		},
	}
}

// withEngine loads the board, runs one gesture and waits for its outcome.
func withEngine(ctx context.Context, cmd *cli.Command, gesture func(*kanban.Engine) error) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	actor, err := actorFromToken(cmd.String("token"))
	if err != nil {
		return err
	}
	cols, err := loadColumns(cmd)
	if err != nil {
		return err
	}
	tasks, err := client.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("loading board: %w", err)
	}

	var outcome error
	out := cmd.Root().Writer
	notifier := kanban.NotifierFunc(func(n kanban.Notice) {
		fmt.Fprintf(out, "%s: %s\n", n.TaskID, n.Message)
		if n.Kind == kanban.NoticeRolledBack {
			outcome = n.Err
		}
	})

	engine := kanban.NewEngine(kanban.NewBoard(tasks), actor, client,
		kanban.WithColumns(cols),
		kanban.WithNotifier(notifier),
		kanban.WithLogger(logger(cmd)),
	)
	if err := gesture(engine); err != nil {
		return err
	}
	engine.Wait()
	engine.Close()
	return outcome
}

func newClient(cmd *cli.Command) (*utils.TaskClient, error) {
	token := cmd.String("token")
	if token == "" {
		return nil, errors.New("no token: set TASKS_TOKEN or pass --token")
	}
	return utils.NewTaskClient(cmd.String("api"), token, nil, logger(cmd)), nil
}

func loadColumns(cmd *cli.Command) (*kanban.Columns, error) {
	if path := cmd.String("columns"); path != "" {
		return kanban.LoadColumns(path)
	}
	return kanban.DefaultColumns(), nil
}

func logger(cmd *cli.Command) logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	if cmd.Bool("verbose") {
		l.SetOutput(os.Stderr)
	}
	return l
}

// actorFromToken reads the actor out of the token without verifying it.
// The server verifies every request; the local copy only drives the
// board's optimistic checks.
func actorFromToken(token string) (models.Actor, error) {
	var claims middleware.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return models.Actor{}, fmt.Errorf("reading token: %w", err)
	}
	actor := claims.Actor()
	if actor.ID == "" || !actor.Role.Valid() {
		return models.Actor{}, fmt.Errorf("token carries no usable actor: %w", lifecycle.ErrValidation)
	}
	return actor, nil
}
