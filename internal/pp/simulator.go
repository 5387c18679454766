package pp

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"kudosu/internal/model"
)

// Simulator computes the maximum-score pp for a chart under a mod
// bitmask. Implementations are expected to be deterministic for
// identical inputs; the pp formula itself lives outside this program.
type Simulator interface {
	SimulateMaxPP(ctx context.Context, chartPath string, modMask int, ruleset model.Ruleset) (float64, error)
}

// CommandSimulator shells out to an external pp calculator. The command
// is invoked as: <cmd> <chartPath> <modMask> <ruleset> and must print a
// single pp value on stdout.
type CommandSimulator struct {
	Command string
}

func NewCommandSimulator(command string) *CommandSimulator {
	return &CommandSimulator{Command: command}
}

func (s *CommandSimulator) SimulateMaxPP(ctx context.Context, chartPath string, modMask int, ruleset model.Ruleset) (float64, error) {
	cmd := exec.CommandContext(ctx, s.Command, chartPath, strconv.Itoa(modMask), string(ruleset))
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("pp simulation: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("pp simulation output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return v, nil
}
