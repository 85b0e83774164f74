// Package state persists tutoring records in a local bbolt database:
// students, sessions, and key/value settings. The schema (buckets and
// default settings rows) is created on first run; bbolt's file lock
// doubles as single-instance enforcement for the database.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/text/unicode/norm"
)

const (
	// dbDirPerm is the permission mode for the database directory.
	dbDirPerm = fs.FileMode(0o700)

	// dbFilePerm is the permission mode for the database file.
	dbFilePerm = fs.FileMode(0o600)

	// dbOpenTimeout is the maximum time to wait for the bolt file lock.
	// A second rabbittt instance gives up instead of blocking forever.
	dbOpenTimeout = 5 * time.Second
)

var (
	studentsBucket = []byte("students")
	sessionsBucket = []byte("sessions")
	settingsBucket = []byte("settings")
)

// Student is one tutoring client.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one scheduled tutoring session.
type Session struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Start     time.Time `json:"start"`
	Minutes   int       `json:"minutes"`
	Price     string    `json:"price,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Setting is one key/description/value configuration row.
type Setting struct {
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description" yaml:"description"`
	Value       string `json:"value" yaml:"value"`
}

// State wraps the bbolt database holding all tutoring records.
type State struct {
	db *bolt.DB
}

// Load opens the database at the given path, creating the file, the
// buckets, and the default settings rows on first run.
func Load(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(path, dbFilePerm, &bolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening record database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{studentsBucket, sessionsBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return seedSettings(tx.Bucket(settingsBucket))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing record database: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database and releases its file lock.
func (s *State) Close() error {
	return s.db.Close()
}

// nameKey normalizes a student name for lookups: NFC-composed,
// whitespace-trimmed, case-folded. Names typed on different platforms
// (or pasted from the calendar) compare equal this way.
func nameKey(name string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(name)))
}

// --- Students ---

// SaveStudent inserts or updates a student record keyed by ID.
func (s *State) SaveStudent(st Student) error {
	if st.ID == "" {
		return fmt.Errorf("student ID is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}

		return tx.Bucket(studentsBucket).Put([]byte(st.ID), data)
	})
}

// GetStudent returns a student by ID, or nil if not found.
func (s *State) GetStudent(id string) (*Student, error) {
	var st *Student

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(studentsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		st = &Student{}

		return json.Unmarshal(v, st)
	})

	return st, err
}

// FindStudentByName returns the first student whose normalized name
// matches, or nil if none does.
func (s *State) FindStudentByName(name string) (*Student, error) {
	key := nameKey(name)

	var found *Student

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(studentsBucket).ForEach(func(_, v []byte) error {
			if found != nil {
				return nil
			}

			var st Student
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}

			if nameKey(st.Name) == key {
				found = &st
			}

			return nil
		})
	})

	return found, err
}

// DeleteStudent removes a student record by ID.
func (s *State) DeleteStudent(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(studentsBucket).Delete([]byte(id))
	})
}

// AllStudents returns all students sorted by normalized name.
func (s *State) AllStudents() ([]Student, error) {
	var students []Student

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(studentsBucket).ForEach(func(_, v []byte) error {
			var st Student
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}

			students = append(students, st)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(students, func(i, j int) bool {
		return nameKey(students[i].Name) < nameKey(students[j].Name)
	})

	return students, nil
}

// --- Sessions ---

// SaveSession inserts or updates a session record keyed by ID.
func (s *State) SaveSession(sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		return tx.Bucket(sessionsBucket).Put([]byte(sess.ID), data)
	})
}

// GetSession returns a session by ID, or nil if not found.
func (s *State) GetSession(id string) (*Session, error) {
	var sess *Session

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		sess = &Session{}

		return json.Unmarshal(v, sess)
	})

	return sess, err
}

// DeleteSession removes a session record by ID.
func (s *State) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}

// AllSessions returns all sessions sorted by start time.
func (s *State) AllSessions() ([]Session, error) {
	var sessions []Session

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(_, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}

			sessions = append(sessions, sess)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Start.Before(sessions[j].Start)
	})

	return sessions, nil
}

// UpcomingSessions returns up to limit sessions starting at or after
// from, ordered by start time. A limit of 0 means no cap.
func (s *State) UpcomingSessions(from time.Time, limit int) ([]Session, error) {
	all, err := s.AllSessions()
	if err != nil {
		return nil, err
	}

	var upcoming []Session
	for _, sess := range all {
		if sess.Start.Before(from) {
			continue
		}

		upcoming = append(upcoming, sess)
		if limit > 0 && len(upcoming) == limit {
			break
		}
	}

	return upcoming, nil
}

// --- Settings ---

// PutSetting inserts or updates a settings row.
func (s *State) PutSetting(set Setting) error {
	if set.Key == "" {
		return fmt.Errorf("setting key is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(set)
		if err != nil {
			return err
		}

		return tx.Bucket(settingsBucket).Put([]byte(set.Key), data)
	})
}

// GetSetting returns a settings row by key, or nil if not found.
func (s *State) GetSetting(key string) (*Setting, error) {
	var set *Setting

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(settingsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}

		set = &Setting{}

		return json.Unmarshal(v, set)
	})

	return set, err
}

// AllSettings returns all settings rows sorted by key.
func (s *State) AllSettings() ([]Setting, error) {
	var settings []Setting

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).ForEach(func(_, v []byte) error {
			var set Setting
			if err := json.Unmarshal(v, &set); err != nil {
				return err
			}

			settings = append(settings, set)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(settings, func(i, j int) bool {
		return settings[i].Key < settings[j].Key
	})

	return settings, nil
}
