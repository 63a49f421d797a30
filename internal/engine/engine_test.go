package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"dpqc/internal/budget"
	"dpqc/internal/check"
	"dpqc/internal/privacy"
)

// scriptedCheck is a stand-in check with a fixed outcome, so engine behavior
// can be tested without any collaborator wiring.
type scriptedCheck struct {
	name    string
	epsilon float64
	count   int
	fail    error
	onExec  func()
	execs   *[]string
}

func (c *scriptedCheck) Name() string        { return c.name }
func (c *scriptedCheck) Description() string { return "scripted " + c.name }
func (c *scriptedCheck) Epsilon() float64    { return c.epsilon }

func (c *scriptedCheck) Execute(_ context.Context, _ check.Target) check.Result {
	if c.execs != nil {
		*c.execs = append(*c.execs, c.name)
	}
	if c.onExec != nil {
		c.onExec()
	}
	if c.fail != nil {
		return check.Failure(c.Description(), c.fail)
	}
	count := c.count
	dp := c.count
	return check.Result{
		Count:       &count,
		CountDP:     &dp,
		EpsilonUsed: c.epsilon,
		Description: c.Description(),
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Event(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) stages(name string) []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Stage
	for _, e := range s.events {
		if e.Check == name {
			out = append(out, e.Stage)
		}
	}
	return out
}

type EngineSuite struct {
	suite.Suite
	target Params
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.target = Params{
		SubjectType: "Patient",
		Mode:        check.ModePopulation,
		Epsilon:     1.0,
		TotalBudget: 10.0,
	}
}

func (s *EngineSuite) registry(checks ...check.Check) *check.Registry {
	reg, err := check.NewRegistry(checks...)
	s.Require().NoError(err)
	return reg
}

func (s *EngineSuite) TestValidation() {
	eng := New(s.registry(), nil, nil)

	s.Run("rejects non-positive epsilon", func() {
		p := s.target
		p.Epsilon = 0
		_, err := eng.Run(context.Background(), p)
		s.Require().ErrorIs(err, privacy.ErrInvalidEpsilon)
	})

	s.Run("rejects non-positive budget", func() {
		p := s.target
		p.TotalBudget = -1
		_, err := eng.Run(context.Background(), p)
		s.Require().ErrorIs(err, budget.ErrInvalidBudget)
	})

	s.Run("rejects epsilon above the budget", func() {
		p := s.target
		p.Epsilon = 3.0
		p.TotalBudget = 2.0
		_, err := eng.Run(context.Background(), p)
		s.Require().ErrorIs(err, ErrBudgetTooSmall)
	})

	s.Run("rejects unknown report mode", func() {
		p := s.target
		p.Mode = "verbose"
		_, err := eng.Run(context.Background(), p)
		s.Require().Error(err)
	})
}

func (s *EngineSuite) TestBudgetExhaustion() {
	// total 2.0 with three checks at epsilon 1.0: the first two complete,
	// the third is rejected without executing.
	var execs []string
	reg := s.registry(
		&scriptedCheck{name: "one", epsilon: 1.0, count: 5, execs: &execs},
		&scriptedCheck{name: "two", epsilon: 1.0, count: 7, execs: &execs},
		&scriptedCheck{name: "three", epsilon: 1.0, count: 9, execs: &execs},
	)
	sink := &recordingSink{}
	eng := New(reg, sink, nil)

	p := s.target
	p.TotalBudget = 2.0
	rep, err := eng.Run(context.Background(), p)
	s.Require().NoError(err)

	s.Equal([]string{"one", "two"}, execs)
	s.Equal(2.0, rep.TotalEpsilonUsed)

	third, ok := rep.Result("three")
	s.Require().True(ok)
	s.Equal(budget.ErrExceeded.Error(), third.Err)
	s.Zero(third.EpsilonUsed)
	s.Nil(third.Count)

	s.Equal([]Stage{StageRejected}, sink.stages("three"))

	var sum float64
	for _, name := range rep.Names() {
		res, _ := rep.Result(name)
		sum += res.EpsilonUsed
	}
	s.LessOrEqual(sum, p.TotalBudget)
}

func (s *EngineSuite) TestFailureIsolation() {
	var execs []string
	reg := s.registry(
		&scriptedCheck{name: "ok-1", epsilon: 1.0, count: 1, execs: &execs},
		&scriptedCheck{name: "broken", epsilon: 1.0, fail: errors.New("connection reset"), execs: &execs},
		&scriptedCheck{name: "ok-2", epsilon: 1.0, count: 2, execs: &execs},
	)
	eng := New(reg, nil, nil)

	rep, err := eng.Run(context.Background(), s.target)
	s.Require().NoError(err)

	s.Equal([]string{"ok-1", "broken", "ok-2"}, execs, "a failing check must not stop its siblings")

	broken, ok := rep.Result("broken")
	s.Require().True(ok)
	s.Contains(broken.Err, "connection reset")
	s.Zero(broken.EpsilonUsed)

	// Only the two completions were billed.
	s.Equal(2.0, rep.TotalEpsilonUsed)
}

func (s *EngineSuite) TestEveryCheckEnumerated() {
	reg := s.registry(
		&scriptedCheck{name: "a", epsilon: 1.0, count: 1},
		&scriptedCheck{name: "b", epsilon: 1.0, fail: errors.New("x")},
		&scriptedCheck{name: "c", epsilon: 1.0, count: 1},
	)
	eng := New(reg, nil, nil)

	p := s.target
	p.TotalBudget = 1.0
	rep, err := eng.Run(context.Background(), p)
	s.Require().NoError(err)

	s.Equal([]string{"a", "b", "c"}, rep.Names())
	for _, name := range rep.Names() {
		res, ok := rep.Result(name)
		s.Require().True(ok, name)
		s.True(res.Err != "" || res.Count != nil, "check %s must carry a result or an error", name)
	}
}

func (s *EngineSuite) TestCancellationKeepsCompletedResults() {
	ctx, cancel := context.WithCancel(context.Background())
	var execs []string
	reg := s.registry(
		&scriptedCheck{name: "first", epsilon: 1.0, count: 3, execs: &execs, onExec: cancel},
		&scriptedCheck{name: "second", epsilon: 1.0, count: 4, execs: &execs},
		&scriptedCheck{name: "third", epsilon: 1.0, count: 5, execs: &execs},
	)
	sink := &recordingSink{}
	eng := New(reg, sink, nil)

	rep, err := eng.Run(ctx, s.target)
	s.Require().NoError(err)

	s.Equal([]string{"first"}, execs, "pending checks must not run after cancellation")

	first, _ := rep.Result("first")
	s.Require().NotNil(first.Count)
	s.Equal(3, *first.Count)
	s.Equal(1.0, first.EpsilonUsed)

	for _, name := range []string{"second", "third"} {
		res, ok := rep.Result(name)
		s.Require().True(ok, name)
		s.Equal(ErrRunCancelled.Error(), res.Err)
		s.Zero(res.EpsilonUsed)
		s.Equal([]Stage{StageCancelled}, sink.stages(name))
	}

	s.Equal(1.0, rep.TotalEpsilonUsed, "the ledger records exactly what was billed before the abort")
}

func (s *EngineSuite) TestSinkSeesEveryTransition() {
	reg := s.registry(
		&scriptedCheck{name: "good", epsilon: 1.0, count: 1},
		&scriptedCheck{name: "bad", epsilon: 1.0, fail: errors.New("x")},
	)
	sink := &recordingSink{}
	eng := New(reg, sink, nil)

	_, err := eng.Run(context.Background(), s.target)
	s.Require().NoError(err)

	s.Equal([]Stage{StageAdmitted, StageCompleted}, sink.stages("good"))
	s.Equal([]Stage{StageAdmitted, StageFailed}, sink.stages("bad"))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		s.NotEmpty(e.RunID)
	}
}

func (s *EngineSuite) TestAdmissionUsesPerCheckEpsilon() {
	// A cheaper check later in the sequence still fits after an expensive
	// one is rejected: admission must ask each check for its own price.
	var execs []string
	reg := s.registry(
		&scriptedCheck{name: "big", epsilon: 1.5, count: 1, execs: &execs},
		&scriptedCheck{name: "too-big", epsilon: 1.0, count: 1, execs: &execs},
		&scriptedCheck{name: "small", epsilon: 0.5, count: 1, execs: &execs},
	)
	eng := New(reg, nil, nil)

	p := s.target
	p.Epsilon = 0.5
	p.TotalBudget = 2.0
	rep, err := eng.Run(context.Background(), p)
	s.Require().NoError(err)

	s.Equal([]string{"big", "small"}, execs)
	s.Equal(2.0, rep.TotalEpsilonUsed)
}

func TestDescriptionFilledFromCheck(t *testing.T) {
	reg, err := check.NewRegistry(&scriptedCheck{name: "n", epsilon: 1.0, count: 1})
	require.NoError(t, err)
	eng := New(reg, nil, nil)

	rep, err := eng.Run(context.Background(), Params{
		SubjectType: "Patient",
		Mode:        check.ModePopulation,
		Epsilon:     1.0,
		TotalBudget: 2.0,
	})
	require.NoError(t, err)

	res, _ := rep.Result("n")
	require.Equal(t, "scripted n", res.Description)
}
