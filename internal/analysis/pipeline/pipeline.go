// Package pipeline wires the three analysis stages into one asynchronous
// unit of work: aggregate features, score them with the strategy chosen
// at submission, compose the report and park it in the artifact store.
package pipeline

import (
	"context"
	"fmt"

	"github.com/campus-insight/campus-insight-hub/internal/analysis/aggregator"
	"github.com/campus-insight/campus-insight-hub/internal/analysis/report"
	"github.com/campus-insight/campus-insight-hub/internal/analysis/scorer"
	"github.com/campus-insight/campus-insight-hub/internal/domain/analysis"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/internal/jobrunner"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

// ArtifactStore parks composed reports for the polling client. Put
// returns the key under which the report can be fetched; entries expire
// on the store's TTL.
type ArtifactStore interface {
	Put(ctx context.Context, r *report.Report) (key string, err error)
	Get(ctx context.Context, key string) (*report.Report, error)
}

// Pipeline builds analysis units of work.
type Pipeline struct {
	aggregator *aggregator.Aggregator
	students   student.Repository
	oracle     scorer.IndicatorSource
	artifacts  ArtifactStore
	log        *logger.Logger
}

// New assembles a pipeline over the given dependencies. The oracle may be
// nil; the ideology strategy then runs without text indicators.
func New(agg *aggregator.Aggregator, students student.Repository, oracle scorer.IndicatorSource, artifacts ArtifactStore, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	return &Pipeline{
		aggregator: agg,
		students:   students,
		oracle:     oracle,
		artifacts:  artifacts,
		log:        log.With(logger.Component("pipeline")),
	}
}

// Submit validates the run synchronously and enqueues it. Configuration
// problems (bad contamination, inverted bands, unknown kind) surface here,
// before any job exists; everything after this point fails through the job
// record. A nil student set means the whole roster.
func (p *Pipeline) Submit(ctx context.Context, runner *jobrunner.Runner, params analysis.Params, ids []student.ID) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	strategy, err := scorer.ForKind(params.Kind, p.oracle, p.log)
	if err != nil {
		return "", err
	}
	return runner.Submit(ctx, string(params.Kind), p.unitOfWork(strategy, params, ids))
}

func (p *Pipeline) unitOfWork(strategy scorer.Strategy, params analysis.Params, ids []student.ID) jobrunner.UnitOfWork {
	return func(ctx context.Context, progress jobrunner.ProgressFunc) (*jobrunner.Result, error) {
		log := p.log.With(logger.AnalysisKind(string(params.Kind)))

		if ids == nil {
			all, err := p.students.ListIDs(ctx)
			if err != nil {
				return nil, fmt.Errorf("resolving student roster: %w", err)
			}
			ids = all
		}

		// An empty roster is a successful run with an empty report, not
		// an error.
		if len(ids) == 0 {
			return p.finish(ctx, params, nil, nil, progress)
		}

		progress(0, len(ids), "aggregating features")
		rows, err := p.aggregator.Aggregate(ctx, ids, params, func(done, total int) {
			progress(done, total, "aggregating features")
		})
		if err != nil {
			return nil, err
		}

		progress(len(ids), len(ids), "scoring")
		assessments, err := strategy.Score(ctx, rows, params)
		if err != nil {
			return nil, err
		}
		log.Info("scoring finished", logger.Rows(len(assessments)))

		return p.finish(ctx, params, assessments, ids, progress)
	}
}

// finish composes the report, stores the artifact and builds the result.
// A report is only ever published whole; any failure before this returns
// leaves no artifact behind.
func (p *Pipeline) finish(ctx context.Context, params analysis.Params, assessments []analysis.RiskAssessment, ids []student.ID, progress jobrunner.ProgressFunc) (*jobrunner.Result, error) {
	var roster []*student.Student
	if len(ids) > 0 {
		var err error
		roster, err = p.students.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("loading student metadata: %w", err)
		}
	}

	rep := report.Compose(params.Kind, params.Window, assessments, roster)

	var key string
	if p.artifacts != nil {
		var err error
		key, err = p.artifacts.Put(ctx, rep)
		if err != nil {
			return nil, fmt.Errorf("storing report artifact: %w", err)
		}
	}

	// Report against the submitted ID count, not rep.TotalStudents: IDs
	// missing from the roster shrink the report, and progress must never
	// step backwards from the counts already published.
	progress(len(ids), len(ids), "report composed")
	return &jobrunner.Result{
		Records:     rep.TotalStudents,
		ArtifactKey: key,
		Summary:     fmt.Sprintf("%d students assessed, %d flagged", rep.TotalStudents, rep.TotalFlagged),
	}, nil
}
