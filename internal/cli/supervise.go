package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/subagent"
)

var (
	superviseTimeout time.Duration
	superviseWatch   bool
)

func init() {
	rootCmd.AddCommand(superviseCmd)
	superviseCmd.Flags().DurationVar(&superviseTimeout, "timeout", 0, "Stop serving approvals after this long (0 = until the child exits)")
	superviseCmd.Flags().BoolVar(&superviseWatch, "watch", true, "Reload the policy file when it changes")
}

var superviseCmd = &cobra.Command{
	Use:   "supervise [flags] -- <command> [args...]",
	Short: "Run a subagent and answer its approval requests",
	Long: "Starts the command with an approval channel on inherited descriptors\n" +
		"(named in " + subagent.EnvFDs + ") and this session's policy in\n" +
		policy.EnvSnapshot + ". Every request the child sends is checked\n" +
		"against this policy, then prompted on this terminal, or forwarded\n" +
		"upward when toolgate itself runs under a supervisor. \"Allow always\"\n" +
		"answers are kept for this session.\n\n" +
		"Exits with the child's exit code.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSupervise,
}

func runSupervise(cmd *cobra.Command, args []string) error {
	log := logger.Named("supervise")

	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if superviseWatch && s.configPath != "" {
		r, err := policy.NewReloader(s.policy, s.configPath, applyOverrides)
		if err != nil {
			log.WithError(err).Warn("policy hot reload disabled")
		} else {
			go func() {
				if err := r.Run(ctx); err != nil {
					log.WithError(err).Warn("policy watcher stopped")
				}
			}()
		}
	}

	pipes, err := subagent.NewPipes()
	if err != nil {
		return err
	}

	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	pipes.Prepare(child)
	snapshot, err := s.policy.EnvEntry()
	if err != nil {
		pipes.Close()
		return err
	}
	child.Env = append(child.Env, snapshot)
	if err := child.Start(); err != nil {
		pipes.Close()
		return fmt.Errorf("start %s: %w", args[0], err)
	}
	if err := pipes.CloseChildEnd(); err != nil {
		log.WithError(err).Debug("closing child descriptors")
	}

	parent := pipes.ParentEnd()
	parent.PeerPID = child.Process.Pid
	sup := subagent.NewSupervisor()
	sup.Attach(parent)
	log.WithField("pid", child.Process.Pid).Info("supervising subagent")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			_ = child.Process.Signal(sig)
		case <-ctx.Done():
		}
	}()

	served := make(chan error, 1)
	go func() {
		served <- sup.Serve(ctx, subagent.HandlerFunc(s.gate.HandleSubagent), superviseTimeout)
	}()

	waitErr := child.Wait()
	cancel()
	if err := <-served; err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("approval supervisor stopped")
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		s.close()
		os.Exit(exitErr.ExitCode())
	}
	return waitErr
}
