package gradeapi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/pkg/logger"
)

// Source reads sections straight from the upstream API. Grades are fetched
// per student through a bounded pool of workers.
type Source struct {
	client *Client
	mapper *Mapper
	log    *logger.Logger
}

var (
	_ gradebook.Repository     = (*Source)(nil)
	_ gradebook.SnapshotSource = (*Source)(nil)
)

// NewSource creates a Source.
func NewSource(client *Client, log *logger.Logger) *Source {
	if log == nil {
		log = logger.Nop()
	}
	return &Source{client: client, mapper: NewMapper(), log: log.With(logger.Component("gradeapi.source"))}
}

// ListSubjects returns the section's valid subjects.
func (s *Source) ListSubjects(ctx context.Context, section string) ([]gradebook.Subject, error) {
	dtos, err := s.client.ListSubjects(ctx, section)
	if err != nil {
		return nil, err
	}
	valid, rejected := s.mapper.ToSubjects(dtos)
	for _, r := range rejected {
		s.log.Warn("subject rejected", logger.Section(section), logger.SubjectID(r.Key().String()))
	}
	return valid, nil
}

// ListStudents returns the section's students with grades. It fails when any
// student's grades could not be fetched.
func (s *Source) ListStudents(ctx context.Context, section string) ([]*gradebook.Student, error) {
	snap, err := s.Fetch(ctx, section)
	if err != nil {
		return nil, err
	}
	if err := snap.Complete(); err != nil {
		return nil, err
	}
	return snap.Students, nil
}

// Fetch materializes a whole section: catalog, roster and every grade book.
// A failed grade fetch is recorded in FailedStudents instead of failing the
// snapshot; the context being done does fail it.
func (s *Source) Fetch(ctx context.Context, section string) (*gradebook.Snapshot, error) {
	start := time.Now()

	subjectDTOs, err := s.client.ListSubjects(ctx, section)
	if err != nil {
		return nil, err
	}
	subjects, rejected := s.mapper.ToSubjects(subjectDTOs)
	catalog := gradebook.NewCatalog(subjects)

	studentDTOs, err := s.client.ListStudents(ctx, section)
	if err != nil {
		return nil, err
	}

	snap := &gradebook.Snapshot{Section: gradebook.NormalizeSection(section), Subjects: subjects}
	for _, r := range rejected {
		snap.RejectedSubjects = append(snap.RejectedSubjects, r.Key().String())
	}

	seen := make(map[string]bool, len(studentDTOs))
	for _, dto := range studentDTOs {
		st, err := s.mapper.ToStudent(dto)
		if err != nil || seen[st.ID] {
			continue
		}
		if st.Section == "" {
			st.Section = section
		}
		seen[st.ID] = true
		snap.Students = append(snap.Students, st)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.client.Workers())
	for _, st := range snap.Students {
		g.Go(func() error {
			book, err := s.client.StudentGrades(gctx, st.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("grade fetch failed", logger.StudentID(st.ID), logger.Err(err))
				mu.Lock()
				snap.FailedStudents = append(snap.FailedStudents, st.ID)
				mu.Unlock()
				return nil
			}
			// Each goroutine owns its student; no lock needed for SetGrade.
			s.mapper.ApplyGrades(st, book, catalog)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.FetchedAt = time.Now().UTC()
	s.log.Info("section fetched",
		logger.Section(section),
		logger.CohortSize(len(snap.Students)),
		logger.Int("subjects", len(subjects)),
		logger.Int("failed_students", len(snap.FailedStudents)),
		logger.Latency(time.Since(start)))
	return snap, nil
}
