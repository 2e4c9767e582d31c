package store

import (
	"github.com/ereinha3/eznas/pkg/types"
)

// MaxRunHistory bounds the persisted run log.
const MaxRunHistory = 20

func (s *Store) loadRuns() ([]types.RunRecord, error) {
	var runs []types.RunRecord
	if err := s.loadSection(SectionRuns, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) saveRuns(runs []types.RunRecord) error {
	if len(runs) > MaxRunHistory {
		runs = runs[len(runs)-MaxRunHistory:]
	}
	return s.saveSection(SectionRuns, runs)
}

// StartRun appends a fresh, unresolved run record.
func (s *Store) StartRun(runID string) error {
	runs, err := s.loadRuns()
	if err != nil {
		return err
	}
	runs = append(runs, types.RunRecord{RunID: runID, Events: []types.StageEvent{}})
	return s.saveRuns(runs)
}

// AppendRunEvent adds a stage event to a run, creating the record if the
// run was never started.
func (s *Store) AppendRunEvent(runID string, event types.StageEvent) error {
	runs, err := s.loadRuns()
	if err != nil {
		return err
	}
	for i := range runs {
		if runs[i].RunID == runID {
			runs[i].Events = append(runs[i].Events, event)
			return s.saveRuns(runs)
		}
	}
	runs = append(runs, types.RunRecord{RunID: runID, Events: []types.StageEvent{event}})
	return s.saveRuns(runs)
}

// FinalizeRun marks a run's terminal result.
func (s *Store) FinalizeRun(runID string, ok bool, summary string) error {
	runs, err := s.loadRuns()
	if err != nil {
		return err
	}
	for i := range runs {
		if runs[i].RunID == runID {
			runs[i].OK = &ok
			if summary != "" {
				runs[i].Summary = summary
			}
			return s.saveRuns(runs)
		}
	}
	runs = append(runs, types.RunRecord{RunID: runID, OK: &ok, Events: []types.StageEvent{}, Summary: summary})
	return s.saveRuns(runs)
}

// GetRun returns a run record by id, nil when unknown.
func (s *Store) GetRun(runID string) (*types.RunRecord, error) {
	runs, err := s.loadRuns()
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].RunID == runID {
			record := runs[i]
			return &record, nil
		}
	}
	return nil, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]types.RunRecord, error) {
	runs, err := s.loadRuns()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	// Stored oldest-first; reverse for newest-first.
	out := make([]types.RunRecord, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}
