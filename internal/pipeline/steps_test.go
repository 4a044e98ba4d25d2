package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/gubacrawl/internal/crawler"
	"github.com/nao1215/gubacrawl/internal/model"
	"github.com/nao1215/gubacrawl/internal/store"
)

func comments(n int) []model.Comment {
	out := make([]model.Comment, n)
	for i := range out {
		out[i] = model.Comment{Title: "post", UpdateTime: "01-09 10:00"}
	}
	return out
}

func newStore(t *testing.T, rows map[string]int) *store.CSVStore {
	t.Helper()

	s, err := store.NewCSVStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for id, n := range rows {
		if err := s.Append(id, comments(n)); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestSkipCompleteStep(t *testing.T) {
	t.Parallel()

	t.Run("complete file is skipped", func(t *testing.T) {
		t.Parallel()

		s := newStore(t, map[string]int{"601360": 12})
		run := NewTargetRun("601360", testStart)

		if err := NewSkipCompleteStep(s).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if !run.Skipped {
			t.Fatal("expected the target to be skipped")
		}
		if run.Summary.StopReason != model.StopSkipped || run.Summary.Records != 12 {
			t.Errorf("unexpected summary %+v", run.Summary)
		}
		if run.Summary.OutputFile != s.Path("601360") {
			t.Errorf("expected output file %s, got %s", s.Path("601360"), run.Summary.OutputFile)
		}
	})

	t.Run("exactly the threshold is complete", func(t *testing.T) {
		t.Parallel()

		s := newStore(t, map[string]int{"601360": 10})
		run := NewTargetRun("601360", testStart)
		if err := NewSkipCompleteStep(s).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if !run.Skipped {
			t.Error("expected 10 rows to count as complete")
		}
	})

	t.Run("partial file is reset", func(t *testing.T) {
		t.Parallel()

		s := newStore(t, map[string]int{"601360": 3})
		run := NewTargetRun("601360", testStart)
		if err := NewSkipCompleteStep(s).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if run.Skipped {
			t.Error("partial file should not be skipped")
		}
		n, err := s.Count("601360")
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("expected the partial file to be removed, %d rows left", n)
		}
	})

	t.Run("partial file is kept without reset", func(t *testing.T) {
		t.Parallel()

		s := newStore(t, map[string]int{"601360": 3})
		step := NewSkipCompleteStep(s, WithResetIncomplete(false))
		if err := step.Do(context.Background(), NewTargetRun("601360", testStart)); err != nil {
			t.Fatal(err)
		}
		n, err := s.Count("601360")
		if err != nil {
			t.Fatal(err)
		}
		if n != 3 {
			t.Errorf("expected 3 rows kept, got %d", n)
		}
	})

	t.Run("custom threshold", func(t *testing.T) {
		t.Parallel()

		s := newStore(t, map[string]int{"601360": 3})
		run := NewTargetRun("601360", testStart)
		if err := NewSkipCompleteStep(s, WithThreshold(3)).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if !run.Skipped {
			t.Error("expected skip with threshold 3")
		}
	})

	t.Run("missing file is crawled", func(t *testing.T) {
		t.Parallel()

		run := NewTargetRun("601360", testStart)
		if err := NewSkipCompleteStep(newStore(t, nil)).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if run.Skipped {
			t.Error("missing file should not be skipped")
		}
	})
}

type fakeCrawler struct {
	calls  []string
	result func(id string) (*crawler.Result, error)
}

func (f *fakeCrawler) Crawl(_ context.Context, targetID string) (*crawler.Result, error) {
	f.calls = append(f.calls, targetID)
	if f.result != nil {
		return f.result(targetID)
	}
	s := model.NewRunSummary(targetID, testStart)
	s.StopReason = model.StopExhausted
	s.Records = 2
	return &crawler.Result{Comments: comments(2), Summary: s}, nil
}

func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("keeps the crawler summary and output file", func(t *testing.T) {
		t.Parallel()

		run := NewTargetRun("601360", testStart)
		run.Summary.OutputFile = "/data/comments_601360.csv"

		if err := NewCrawlStep(&fakeCrawler{}).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if run.Summary.StopReason != model.StopExhausted || run.Summary.Records != 2 {
			t.Errorf("expected the crawler summary, got %+v", run.Summary)
		}
		if run.Summary.OutputFile != "/data/comments_601360.csv" {
			t.Errorf("output file lost: %q", run.Summary.OutputFile)
		}
		if len(run.Comments) != 2 {
			t.Errorf("expected 2 comments, got %d", len(run.Comments))
		}
	})

	t.Run("output path option names the file", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(&fakeCrawler{}, WithOutputPath(func(id string) string { return "/out/" + id + ".csv" }))
		run := NewTargetRun("601360", testStart)
		if err := step.Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if run.Summary.OutputFile != "/out/601360.csv" {
			t.Errorf("unexpected output file %q", run.Summary.OutputFile)
		}
	})

	t.Run("failure keeps partial results", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{result: func(id string) (*crawler.Result, error) {
			s := model.NewRunSummary(id, testStart)
			s.StopReason = model.StopCancelled
			return &crawler.Result{Comments: comments(1), Summary: s}, context.Canceled
		}}
		run := NewTargetRun("601360", testStart)
		err := NewCrawlStep(fc).Do(context.Background(), run)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if run.Summary.StopReason != model.StopCancelled || len(run.Comments) != 1 {
			t.Errorf("partial results lost: %+v", run.Summary)
		}
	})
}

type fakeHistory struct {
	saved []*model.RunSummary
	err   error
}

func (f *fakeHistory) SaveRun(_ context.Context, s *model.RunSummary) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, s)
	return nil
}

func TestRecordRunStep(t *testing.T) {
	t.Parallel()

	t.Run("saves the summary", func(t *testing.T) {
		t.Parallel()

		h := &fakeHistory{}
		run := NewTargetRun("601360", testStart)
		if err := NewRecordRunStep(h).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]*model.RunSummary{run.Summary}, h.saved); diff != "" {
			t.Errorf("saved mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("wraps save errors", func(t *testing.T) {
		t.Parallel()

		locked := errors.New("database is locked")
		err := NewRecordRunStep(&fakeHistory{err: locked}).Do(context.Background(), NewTargetRun("601360", testStart))
		if !errors.Is(err, locked) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
}
