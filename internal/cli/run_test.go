package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunCommandExecutesWorkflow(t *testing.T) {
	path := writeWorkflow(t, validWorkflow)

	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"run", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "lint") || !strings.Contains(buf.String(), "test") {
		t.Errorf("expected both checks in report output, got: %s", buf.String())
	}
}

func TestRunCommandTargetsSubset(t *testing.T) {
	path := writeWorkflow(t, validWorkflow)

	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"run", "--target", "lint", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "lint") {
		t.Errorf("expected lint in report output, got: %s", buf.String())
	}
}
