package tracker

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	ts "sfneuman.com/voxrl/timestep"
	"sfneuman.com/voxrl/utils/floatutils"
)

// episodeRow is a single finished episode waiting to be flushed to
// the database
type episodeRow struct {
	steps int
	ret   float64
}

// RunLog tracks per-episode statistics and saves them to a SQLite
// database, so that runs can be inspected and compared with plain SQL
// while an experiment is still in progress.
type RunLog struct {
	db            *sql.DB
	run           string
	currentReturn float64
	currentSteps  int
	pending       []episodeRow
	episode       int
}

// NewRunLog creates and returns a new *RunLog Tracker writing to the
// SQLite database at path. The run parameter names this run in the
// database, so several runs can share one file.
func NewRunLog(path, run string) (*RunLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("newrunlog: could not open database: %v", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS episodes (
		run     TEXT NOT NULL,
		episode INTEGER NOT NULL,
		steps   INTEGER NOT NULL,
		return  REAL NOT NULL,
		PRIMARY KEY (run, episode)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("newrunlog: could not create schema: %v", err)
	}

	return &RunLog{db: db, run: run}, nil
}

// Track tracks the rewards seen on a timestep, reduced to the mean
// over agents, caching one row per finished episode
func (r *RunLog) Track(step ts.TimeStep) {
	r.currentReturn += floatutils.Mean(step.Reward...)
	r.currentSteps++

	if step.Last() {
		r.pending = append(r.pending, episodeRow{
			steps: r.currentSteps,
			ret:   r.currentReturn,
		})
		r.currentReturn = 0.0
		r.currentSteps = 0
	}
}

// Save flushes all finished episodes to the database. Save may be
// called repeatedly during an experiment; each call writes only the
// episodes finished since the previous call.
func (r *RunLog) Save() {
	if len(r.pending) == 0 {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		log.Fatalf("could not begin transaction: %v", err)
	}

	const insert = `INSERT INTO episodes (run, episode, steps, return)
		VALUES (?, ?, ?, ?);`
	for _, row := range r.pending {
		if _, err := tx.Exec(insert, r.run, r.episode, row.steps,
			row.ret); err != nil {
			tx.Rollback()
			log.Fatalf("could not insert episode: %v", err)
		}
		r.episode++
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("could not commit episodes: %v", err)
	}
	r.pending = r.pending[:0]
}

// Close flushes any finished episodes and closes the database
func (r *RunLog) Close() error {
	r.Save()
	return r.db.Close()
}
