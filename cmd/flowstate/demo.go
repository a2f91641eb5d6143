package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/flowstate"
	"github.com/petrijr/flowstate/pkg/telemetry"
)

// step is one request of a demo conversation.
type step struct {
	User    string
	Request string
	Key     string
	State   string
	Outcome string
	Output  string
}

func bookingFlow() *flowstate.FlowBuilder {
	return flowstate.New("booking").
		Attribute("caption", "Hotel booking").
		View("enterDetails").On("next", "review").
		View("review").
		On("back", "enterDetails").
		On("confirm", "booked", func(_ context.Context, rc flowstate.RequestContext) (string, error) {
			rc.FlowScope().Put("confirmation", "BK-"+strings.ToUpper(rc.FlowScope().GetString("guest")))
			return "", nil
		}).
		End("booked").Output(flowstate.Mapping{Source: "confirmation"})
}

func (c *cli) demoCmd() *cobra.Command {
	var (
		users int
		back  bool
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run booking conversations against the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if users < 1 {
				return fmt.Errorf("--users must be at least 1, got %d", users)
			}
			steps, err := c.runDemo(cmd.Context(), users, back)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tREQUEST\tKEY\tSTATE\tOUTCOME\tOUTPUT")
			for _, s := range steps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.User, s.Request, s.Key, s.State, s.Outcome, s.Output)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&users, "users", 1, "number of concurrent user sessions")
	cmd.Flags().BoolVar(&back, "back", false, "resubmit the first page from its old key, like a browser back button")
	return cmd
}

func (c *cli) runDemo(ctx context.Context, users int, back bool) ([]step, error) {
	shutdown, err := telemetry.Init(ctx, c.cfg.OTELEndpoint, "flowstate", version, true)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			c.logger.Warn("telemetry_shutdown_failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewListener(telemetry.Config{})
	if err != nil {
		return nil, err
	}

	x, closeStore, err := openExecutor(ctx, c.cfg, flowstate.ExecutorConfig{
		Listeners:         []flowstate.Listener{flowstate.NewLoggingListener(c.logger), metrics},
		Attributes:        map[string]any{flowstate.AlwaysRedirectOnPause: c.cfg.AlwaysRedirectOnPause},
		MaxTransitions:    c.cfg.MaxTransitions,
		MaxConversations:  c.cfg.MaxConversations,
		MaxContinuations:  c.cfg.MaxContinuations,
		CompressSnapshots: c.cfg.CompressSnapshots,
		Logger:            c.logger,
	})
	if err != nil {
		return nil, err
	}
	defer closeStore()

	if err := bookingFlow().Register(x); err != nil {
		return nil, err
	}

	sessions := flowstate.NewSessionStore(flowstate.SessionConfig{TTL: c.cfg.SessionTTL, Logger: c.logger})
	flowstate.ExpireConversations(sessions, x)

	perUser := make([][]step, users)
	g, gctx := errgroup.WithContext(ctx)
	for i := range users {
		g.Go(func() error {
			user := fmt.Sprintf("user-%d", i+1)
			steps, err := book(gctx, x, sessions, user, back)
			perUser[i] = steps
			if err != nil {
				return fmt.Errorf("%s: %w", user, err)
			}
			// Releases the user's conversations and their snapshots.
			sessions.Invalidate(user)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []step
	for _, steps := range perUser {
		all = append(all, steps...)
	}
	return all, nil
}

// book walks one user through the booking flow.
func book(ctx context.Context, x *flowstate.Executor, sessions *flowstate.SessionStore, user string, back bool) ([]step, error) {
	var steps []step
	record := func(request string, res *flowstate.Result) {
		s := step{User: user, Request: request, Key: res.Key, State: res.StateID, Outcome: res.Outcome}
		if v, ok := res.Output["confirmation"]; ok {
			s.Output = fmt.Sprint(v)
		}
		steps = append(steps, s)
	}
	request := func() flowstate.ExternalContext {
		return sessions.NewContext(user, nil)
	}

	first, err := flowstate.Launch(ctx, x, "booking", map[string]any{"guest": user}, request())
	if err != nil {
		return steps, err
	}
	record("launch", first)

	res, err := flowstate.Signal(ctx, x, first.Key, "next", request())
	if err != nil {
		return steps, err
	}
	record("next", res)

	if back {
		if res, err = flowstate.Signal(ctx, x, first.Key, "next", request()); err != nil {
			return steps, err
		}
		record("back+next", res)
	}

	if res, err = flowstate.Signal(ctx, x, res.Key, "confirm", request()); err != nil {
		return steps, err
	}
	record("confirm", res)
	return steps, nil
}
