// Package store is the optional, best-effort persistence layer for
// ride history and fleet statistics. It supplements the dispatch
// core's in-memory state, which remains the source of truth, using a
// sqlite connection pool and versioned migration runner.
package store

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"taxidispatch/pkg/db"
	"taxidispatch/pkg/migration"
)

// recordKind distinguishes the two job shapes the worker goroutine
// persists.
type recordKind int

const (
	kindAccepted recordKind = iota
	kindRejected
)

type job struct {
	kind     recordKind
	taxiID   int
	riderID  int
	taxiPos  [2]int
	riderPos [2]int
	at       time.Time
}

// Store asynchronously persists ServiceRecord rows and FleetStats
// counters. Writes never block the dispatch critical path: a full
// queue drops the write and logs, rather than applying backpressure.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
	logger  *log.Logger
	queue   chan job
	wg      sync.WaitGroup
}

const queueCapacity = 256

// Open initializes the sqlite database at path, runs migrations, and
// starts the background persistence worker.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := db.Initialize(path); err != nil {
		return nil, err
	}
	writeDB, err := db.GetWriteDB()
	if err != nil {
		return nil, err
	}
	readDB, err := db.GetReadDB()
	if err != nil {
		return nil, err
	}

	runner := migration.NewRunner(writeDB)
	if err := runner.Run(); err != nil {
		return nil, err
	}

	s := &Store{
		writeDB: writeDB,
		readDB:  readDB,
		logger:  logger,
		queue:   make(chan job, queueCapacity),
	}
	s.wg.Add(1)
	go s.worker()
	return s, nil
}

// RecordAccepted enqueues a successful assignment for persistence.
// Implements dispatcher.PersistenceSink.
func (s *Store) RecordAccepted(taxiID, riderID int, taxiPos, riderPos [2]int, at time.Time) {
	s.enqueue(job{kind: kindAccepted, taxiID: taxiID, riderID: riderID, taxiPos: taxiPos, riderPos: riderPos, at: at})
}

// RecordRejected enqueues a rejected ride request for the stats
// counter. Implements dispatcher.PersistenceSink.
func (s *Store) RecordRejected() {
	s.enqueue(job{kind: kindRejected})
}

func (s *Store) enqueue(j job) {
	select {
	case s.queue <- j:
	default:
		s.logger.Printf("store: persistence queue full, dropping %v record", j.kind)
	}
}

func (s *Store) worker() {
	defer s.wg.Done()
	for j := range s.queue {
		if err := s.persist(j); err != nil {
			s.logger.Printf("store: persisting record: %v", err)
		}
	}
}

func (s *Store) persist(j job) error {
	switch j.kind {
	case kindAccepted:
		// Both writes land atomically: a crash between them must never
		// leave a service_records row with no matching fleet_stats bump.
		return db.WithTx(context.Background(), func(tx *sql.Tx) error {
			_, err := tx.Exec(
				`INSERT INTO service_records (taxi_id, rider_id, taxi_x, taxi_y, rider_x, rider_y, assigned_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				j.taxiID, j.riderID, j.taxiPos[0], j.taxiPos[1], j.riderPos[0], j.riderPos[1], j.at,
			)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`UPDATE fleet_stats SET services_accepted = services_accepted + 1 WHERE id = 1`)
			return err
		})
	case kindRejected:
		_, err := s.writeDB.Exec(`UPDATE fleet_stats SET services_rejected = services_rejected + 1 WHERE id = 1`)
		return err
	default:
		return nil
	}
}

// Stats is a snapshot of FleetStats.
type Stats struct {
	ServicesAccepted int
	ServicesRejected int
}

func (s *Store) Stats() (Stats, error) {
	row := s.readDB.QueryRow(`SELECT services_accepted, services_rejected FROM fleet_stats WHERE id = 1`)
	var out Stats
	if err := row.Scan(&out.ServicesAccepted, &out.ServicesRejected); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// Close drains the queue and closes the database connections.
func (s *Store) Close() error {
	close(s.queue)
	s.wg.Wait()
	return db.Close()
}
