package loop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/gyre/internal/checkpoint"
	"github.com/vinayprograms/gyre/internal/config"
	"github.com/vinayprograms/gyre/internal/executor"
	"github.com/vinayprograms/gyre/internal/fsm"
	"github.com/vinayprograms/gyre/internal/gates"
	"github.com/vinayprograms/gyre/internal/manifest"
	"github.com/vinayprograms/gyre/internal/semantic"
	"github.com/vinayprograms/gyre/internal/session"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Executor.Type = "mock"
	cfg.Executor.Preset = ""
	return cfg
}

func newTestController(t *testing.T, cfg *config.Config, workspace string) (*Controller, *executor.MockExecutor) {
	t.Helper()
	mock := executor.NewMock()
	ctrl, err := New(Options{
		Config:    cfg,
		Executor:  mock,
		Gates:     gates.NewShellRunner(workspace),
		Workspace: workspace,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ctrl, mock
}

func writeAction(path, content string) string {
	return fmt.Sprintf(`{"action": "write", "path": %q, "content": %q}`, path, content)
}

func TestRunHappyPath(t *testing.T) {
	ws := t.TempDir()
	ctrl, mock := newTestController(t, testConfig(), ws)
	mock.SetResponse(writeAction("hello.txt", "hi"))
	mock.SetResponse(`{"action": "done", "summary": "wrote greeting"}`)

	result, err := ctrl.Run(context.Background(), Task{
		Description:    "create a greeting file",
		AllowedCreates: []string{"hello.txt"},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.State != fsm.StateComplete {
		t.Fatalf("expected COMPLETE, got %s", result.State)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	data, err := os.ReadFile(filepath.Join(ws, "hello.txt"))
	if err != nil || string(data) != "hi" {
		t.Errorf("file not written: %v %q", err, data)
	}
	if result.Run.Status != session.StatusComplete {
		t.Errorf("run log status: %q", result.Run.Status)
	}
}

func TestWriteDeniedFeedsBack(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "a.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctrl, mock := newTestController(t, testConfig(), ws)
	// Blind write is rejected; after a read it goes through.
	mock.SetResponse(writeAction("a.txt", "new"))
	mock.SetResponse(`{"action": "read", "path": "a.txt"}`)
	mock.SetResponse(writeAction("a.txt", "new"))
	mock.SetResponse(`{"action": "done"}`)

	result, err := ctrl.Run(context.Background(), Task{
		Description:   "update a.txt",
		AllowedWrites: []string{"a.txt"},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.State != fsm.StateComplete {
		t.Fatalf("expected COMPLETE, got %s", result.State)
	}

	prompts := mock.Prompts()
	if len(prompts) != 4 {
		t.Fatalf("expected 4 prompts, got %d", len(prompts))
	}
	if !strings.Contains(prompts[1], manifest.ReasonMustRead) {
		t.Errorf("denial reason not surfaced to agent:\n%s", prompts[1])
	}
	data, _ := os.ReadFile(filepath.Join(ws, "a.txt"))
	if string(data) != "new" {
		t.Errorf("write after read did not land: %q", data)
	}

	// The denial never counted as a failure.
	denied := false
	for _, evt := range result.Run.Events {
		if evt.Type == session.EventWriteDenied {
			denied = true
		}
	}
	if !denied {
		t.Error("denial not recorded in run log")
	}
}

func TestExecutorFailuresEscalateToBlocked(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxConsecutiveFailures = 1
	cfg.Loop.MaxTaskRetries = 10
	ctrl, _ := newTestController(t, cfg, t.TempDir())
	// Empty queue: the first iteration fails with "no response queued"
	// and the failure budget allows no retry.

	result, err := ctrl.Run(context.Background(), Task{Description: "doomed"})
	if err != nil {
		t.Fatalf("run errored instead of blocking: %v", err)
	}
	if result.State != fsm.StateBlocked {
		t.Fatalf("expected BLOCKED, got %s", result.State)
	}
	if result.Run.Status != session.StatusBlocked {
		t.Errorf("run log status: %q", result.Run.Status)
	}
}

func TestRetryBudgetExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxConsecutiveFailures = 10
	cfg.Loop.MaxTaskRetries = 2
	ctrl, _ := newTestController(t, cfg, t.TempDir())

	result, err := ctrl.Run(context.Background(), Task{Description: "doomed"})
	if err != nil {
		t.Fatalf("run errored instead of blocking: %v", err)
	}
	if result.State != fsm.StateBlocked {
		t.Fatalf("expected BLOCKED, got %s", result.State)
	}
	// Two retries were granted before the halt.
	retries := 0
	for _, evt := range result.Run.Events {
		if evt.Type == session.EventTransition && evt.From == string(fsm.StateTaskFailure) && evt.To == string(fsm.StatePlan) {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retries, got %d", retries)
	}
}

func TestGateBlockedPolicyHaltsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxTaskRetries = 10
	cfg.Gates.Tier3.Commands = []string{"false"}
	ctrl, mock := newTestController(t, cfg, t.TempDir())
	mock.SetResponse(`{"action": "done"}`)

	result, err := ctrl.Run(context.Background(), Task{Description: "finish"})
	if err != nil {
		t.Fatalf("run errored: %v", err)
	}
	if result.State != fsm.StateBlocked {
		t.Fatalf("tier3 failure should block, got %s", result.State)
	}
}

func TestGateTaskFailureRetriesUntilPass(t *testing.T) {
	ws := t.TempDir()
	cfg := testConfig()
	cfg.Gates.Tier1.Commands = []string{"test -f gateok"}
	ctrl, mock := newTestController(t, cfg, ws)
	mock.SetResponse(`{"action": "done"}`)
	mock.SetResponse(writeAction("gateok", "ready"))
	mock.SetResponse(`{"action": "done"}`)

	result, err := ctrl.Run(context.Background(), Task{
		Description:    "finish once the gate file exists",
		AllowedCreates: []string{"gateok"},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.State != fsm.StateComplete {
		t.Fatalf("expected COMPLETE after fix, got %s", result.State)
	}

	// The gate failure reached the agent as feedback.
	prompts := mock.Prompts()
	if !strings.Contains(prompts[1], "gate tier1 failed") {
		t.Errorf("gate failure not in feedback:\n%s", prompts[1])
	}
}

func TestMaxIterationsBlocks(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "spin.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Loop.MaxIterations = 2
	ctrl, mock := newTestController(t, cfg, ws)
	for i := 0; i < 5; i++ {
		mock.SetResponse(`{"action": "read", "path": "spin.txt"}`)
	}

	result, err := ctrl.Run(context.Background(), Task{Description: "spin forever"})
	if err != nil {
		t.Fatalf("run errored: %v", err)
	}
	if result.State != fsm.StateBlocked {
		t.Fatalf("expected BLOCKED at iteration cap, got %s", result.State)
	}
	if len(mock.Prompts()) != 2 {
		t.Errorf("executor called %d times, cap was 2", len(mock.Prompts()))
	}
}

func TestRunCommandFeedback(t *testing.T) {
	ctrl, mock := newTestController(t, testConfig(), t.TempDir())
	mock.SetResponse(`{"action": "run", "command": "echo out-of-band"}`)
	mock.SetResponse(`{"action": "done"}`)

	result, err := ctrl.Run(context.Background(), Task{Description: "probe"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.State != fsm.StateComplete {
		t.Fatalf("expected COMPLETE, got %s", result.State)
	}
	if !strings.Contains(mock.Prompts()[1], "out-of-band") {
		t.Errorf("command output not fed back:\n%s", mock.Prompts()[1])
	}
}

func TestCheckpointSavedAndResumed(t *testing.T) {
	ws := t.TempDir()
	store, err := checkpoint.NewStore(filepath.Join(ws, ".gyre"))
	if err != nil {
		t.Fatal(err)
	}

	// A snapshot captured at CHECKPOINT, as a crash would leave it.
	machine := fsm.NewContext()
	for _, target := range []fsm.State{
		fsm.StatePlan, fsm.StateExecute, fsm.StateObserve,
		fsm.StateCritique, fsm.StateCheckpoint,
	} {
		if err := machine.Transition(target, ""); err != nil {
			t.Fatal(err)
		}
	}
	mf := manifest.New(nil, []string{"out.txt"})
	rec := &checkpoint.Record{
		RunID:    "resume-me",
		Task:     "write the output file",
		Machine:  machine.Snapshot(),
		Manifest: mf.Snapshot(),
	}
	if err := store.Save(rec); err != nil {
		t.Fatal(err)
	}

	mock := executor.NewMock()
	mock.SetResponse(writeAction("out.txt", "resumed"))
	mock.SetResponse(`{"action": "done"}`)
	ctrl, err := New(Options{
		Config:      testConfig(),
		Executor:    mock,
		Checkpoints: store,
		Workspace:   ws,
	})
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load("resume-me")
	if err != nil {
		t.Fatal(err)
	}
	result, err := ctrl.Resume(context.Background(), loaded)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if result.State != fsm.StateComplete {
		t.Fatalf("expected COMPLETE, got %s", result.State)
	}
	if result.RunID != "resume-me" {
		t.Errorf("run ID not preserved: %q", result.RunID)
	}
	// Iteration count picks up where the snapshot left off.
	if result.Iterations != 3 {
		t.Errorf("expected 3 iterations total, got %d", result.Iterations)
	}
	if _, err := os.Stat(filepath.Join(ws, "out.txt")); err != nil {
		t.Errorf("resumed work not applied: %v", err)
	}
	// A clean completion clears the checkpoint.
	if store.Exists("resume-me") {
		t.Error("checkpoint should be deleted after COMPLETE")
	}
}

func TestCheckpointKeptWhenBlocked(t *testing.T) {
	ws := t.TempDir()
	store, err := checkpoint.NewStore(filepath.Join(ws, ".gyre"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Loop.MaxConsecutiveFailures = 1
	mock := executor.NewMock()
	ctrl, err := New(Options{Config: cfg, Executor: mock, Checkpoints: store, Workspace: ws})
	if err != nil {
		t.Fatal(err)
	}

	result, err := ctrl.Run(context.Background(), Task{Description: "doomed"})
	if err != nil {
		t.Fatal(err)
	}
	if result.State != fsm.StateBlocked {
		t.Fatalf("expected BLOCKED, got %s", result.State)
	}
	if !store.Exists(result.RunID) {
		t.Error("blocked run should leave a checkpoint for inspection")
	}
}

type recordingSink struct {
	calls []string
}

func (s *recordingSink) Progress(iteration int, state fsm.State, message string) {
	s.calls = append(s.calls, fmt.Sprintf("%d/%s/%s", iteration, state, message))
}

func TestSinkReceivesProgress(t *testing.T) {
	sink := &recordingSink{}
	mock := executor.NewMock()
	mock.SetResponse(`{"action": "done"}`)
	ctrl, err := New(Options{Config: testConfig(), Executor: mock, Sink: sink})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Run(context.Background(), Task{Description: "t"}); err != nil {
		t.Fatal(err)
	}
	if len(sink.calls) == 0 {
		t.Fatal("sink never notified")
	}
	if !strings.Contains(sink.calls[0], "PLAN") {
		t.Errorf("first progress should be planning: %q", sink.calls[0])
	}
}

func TestNewRequiresConfigAndExecutor(t *testing.T) {
	if _, err := New(Options{Executor: executor.NewMock()}); err == nil {
		t.Error("expected error without config")
	}
	if _, err := New(Options{Config: testConfig()}); err == nil {
		t.Error("expected error without executor")
	}
}

func TestQueryTerms(t *testing.T) {
	terms := queryTerms("Fix the billing module's invoice totals, fix it")
	joined := strings.Join(terms, " ")
	for _, want := range []string{"billing", "invoice", "totals", "module"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing term %q in %v", want, terms)
		}
	}
	for _, t2 := range terms {
		if len(t2) < 4 {
			t.Errorf("short word leaked: %q", t2)
		}
	}
	seen := map[string]bool{}
	for _, t2 := range terms {
		if seen[t2] {
			t.Errorf("duplicate term %q", t2)
		}
		seen[t2] = true
	}
}

type staticSearcher struct {
	got  int
	hits []string
}

func (s *staticSearcher) Search(terms []semantic.WeightedTerm) []string {
	s.got = len(terms)
	return s.hits
}

func TestSearcherCandidatesReachPrompt(t *testing.T) {
	searcher := &staticSearcher{hits: []string{"billing/invoice.go", "billing/totals.go"}}
	mock := executor.NewMock()
	mock.SetResponse(`{"action": "done"}`)
	ctrl, err := New(Options{
		Config:   testConfig(),
		Executor: mock,
		Searcher: searcher,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Run(context.Background(), Task{Description: "fix invoice totals"}); err != nil {
		t.Fatal(err)
	}
	if searcher.got == 0 {
		t.Error("searcher never received expanded terms")
	}
	prompt := mock.Prompts()[0]
	if !strings.Contains(prompt, "billing/invoice.go") {
		t.Errorf("candidates missing from prompt:\n%s", prompt)
	}
}
