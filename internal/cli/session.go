package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/prompt"
	"github.com/ppiankov/toolgate/internal/protect"
	"github.com/ppiankov/toolgate/internal/subagent"
)

// exitBlocked is returned when a call is not permitted, as in exec.
const exitBlocked = 77

// session is the state shared by the commands that gate calls.
type session struct {
	policy     *policy.Policy
	configPath string
	protector  *protect.Oracle
	auditLog   *audit.Log
	channel    *subagent.Channel
	gate       *approval.Gate
}

// loadPolicy reads the policy document and applies the command-line
// overrides on top. Inside a supervised child the policy handed down by
// the parent replaces the file, and only overrides that tighten it apply.
func loadPolicy() (*policy.Policy, string, error) {
	inherited, err := policy.FromEnv()
	if err != nil {
		return nil, "", err
	}
	if inherited != nil {
		if err := applyInheritedOverrides(inherited); err != nil {
			return nil, "", err
		}
		return inherited, "", nil
	}

	path := policy.ResolvePath(flagConfig)
	cfg, err := policy.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}
	p := policy.New(*cfg)
	if err := applyOverrides(p); err != nil {
		return nil, "", err
	}
	p.DetectInteractive()
	return p, path, nil
}

// applyInheritedOverrides applies --deny-category to a policy inherited
// from a supervisor. Flags that would loosen it are ignored.
func applyInheritedOverrides(p *policy.Policy) error {
	if flagYolo || flagConfig != "" || len(flagAllow) > 0 || len(flagAllowCategory) > 0 {
		logger.Named("cli").Warn("running under a supervisor: --config, --yolo, --allow and --allow-category are ignored")
	}
	for _, name := range flagDenyCategory {
		if err := setCategory(p, name, model.Deny); err != nil {
			return err
		}
	}
	return nil
}

// applyOverrides applies the persistent flags to p. It runs again after
// every hot reload.
func applyOverrides(p *policy.Policy) error {
	for _, name := range flagAllowCategory {
		if err := setCategory(p, name, model.Allow); err != nil {
			return err
		}
	}
	for _, name := range flagDenyCategory {
		if err := setCategory(p, name, model.Deny); err != nil {
			return err
		}
	}
	for _, spec := range flagAllow {
		if err := p.AddCLIAllow(spec); err != nil {
			return fmt.Errorf("--allow: %w", err)
		}
	}
	if flagYolo {
		p.EnableYolo()
	}
	return nil
}

func setCategory(p *policy.Policy, name string, action model.Action) error {
	cat, err := model.ParseCategory(name)
	if err != nil {
		return fmt.Errorf("invalid category %q: %w", name, err)
	}
	return p.SetCategoryAction(cat, action)
}

// newSession builds the gate for one command. Inside a supervised child
// the prompts go to the parent over the inherited channel.
func newSession() (*session, error) {
	p, path, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	prot, err := protect.Load(protect.DefaultPath())
	if err != nil {
		return nil, fmt.Errorf("load protected files: %w", err)
	}
	if path != "" {
		prot.AddPath(path)
	}

	s := &session{policy: p, configPath: path, protector: prot}
	opts := []approval.Option{approval.WithProtector(prot)}

	if flagAuditLog != "" {
		s.auditLog, err = audit.Open(flagAuditLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		opts = append(opts, approval.WithRecorder(s.auditLog))
	}

	s.channel, err = subagent.FromEnv()
	if err != nil {
		s.close()
		return nil, err
	}
	if s.channel != nil {
		opts = append(opts, approval.WithClient(subagent.NewClient(s.channel)))
	}

	pr := prompt.New(prompt.NewTTY(os.Stdin, os.Stderr), p)
	s.gate = approval.New(p, pr, opts...)
	return s, nil
}

func (s *session) close() {
	if s.auditLog != nil {
		_ = s.auditLog.Close()
		s.auditLog = nil
	}
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
}

// parseCall builds a tool call from "<tool> [args-json]".
func parseCall(args []string) (model.ToolCall, error) {
	call := model.ToolCall{ID: "cli", Name: args[0], Arguments: "{}"}
	if len(args) > 1 {
		call.Arguments = strings.TrimSpace(args[1])
	}
	if !json.Valid([]byte(call.Arguments)) {
		return call, fmt.Errorf("arguments for %s are not valid JSON", call.Name)
	}
	return call, nil
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
